package model

import (
	"fmt"
	"strings"
	"time"
)

type PriorityOrder int

const (
	PriorityOrderNone PriorityOrder = iota
	PriorityOrderHighFirst
	PriorityOrderLowFirst
)

var priorityOrderNames = [...]string{"none", "high_first", "low_first"}

func (o PriorityOrder) Valid() bool { return o >= PriorityOrderNone && o <= PriorityOrderLowFirst }

func (o PriorityOrder) String() string {
	if !o.Valid() {
		return fmt.Sprintf("priority_order(%d)", int(o))
	}
	return priorityOrderNames[o]
}

func (o PriorityOrder) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *PriorityOrder) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, name := range priorityOrderNames {
		if name == s {
			*o = PriorityOrder(i)
			return nil
		}
	}
	return fmt.Errorf("unknown priority order %q", s)
}

// SortCondition selects the date field and its direction.
type SortCondition int

const (
	SortUpdatedDesc SortCondition = iota
	SortUpdatedAsc
	SortCreatedDesc
	SortCreatedAsc
)

var sortConditionNames = [...]string{"updated_desc", "updated_asc", "created_desc", "created_asc"}

func (c SortCondition) Valid() bool { return c >= SortUpdatedDesc && c <= SortCreatedAsc }

func (c SortCondition) String() string {
	if !c.Valid() {
		return fmt.Sprintf("sort_condition(%d)", int(c))
	}
	return sortConditionNames[c]
}

// ByCreated reports whether the condition works on CreatedAt instead of UpdatedAt.
func (c SortCondition) ByCreated() bool { return c == SortCreatedDesc || c == SortCreatedAsc }

func (c SortCondition) Descending() bool { return c == SortUpdatedDesc || c == SortCreatedDesc }

func (c SortCondition) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *SortCondition) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, name := range sortConditionNames {
		if name == s {
			*c = SortCondition(i)
			return nil
		}
	}
	return fmt.Errorf("unknown sort condition %q", s)
}

type SortSpec struct {
	PriorityOrder PriorityOrder `json:"priority_order"`
	OrderEnabled  bool          `json:"order_enabled"`
	Condition     SortCondition `json:"condition"`
}

// StateSet is a bit set of progression states.
type StateSet uint8

const AllStates StateSet = 1<<len(stateNames) - 1

func StateSetOf(states ...State) StateSet {
	var s StateSet
	for _, st := range states {
		s |= 1 << uint(st)
	}
	return s
}

func (s StateSet) Has(st State) bool       { return st.Valid() && s&(1<<uint(st)) != 0 }
func (s StateSet) Toggle(st State) StateSet { return s ^ (1 << uint(st)) }
func (s StateSet) Empty() bool              { return s&AllStates == 0 }

func (s StateSet) Members() []State {
	var out []State
	for _, st := range States {
		if s.Has(st) {
			out = append(out, st)
		}
	}
	return out
}

// PrioritySet is a bit set of priorities.
type PrioritySet uint8

const AllPriorities PrioritySet = 1<<len(priorityNames) - 1

func PrioritySetOf(ps ...Priority) PrioritySet {
	var s PrioritySet
	for _, p := range ps {
		s |= 1 << uint(p)
	}
	return s
}

func (s PrioritySet) Has(p Priority) bool          { return p.Valid() && s&(1<<uint(p)) != 0 }
func (s PrioritySet) Toggle(p Priority) PrioritySet { return s ^ (1 << uint(p)) }
func (s PrioritySet) Empty() bool                   { return s&AllPriorities == 0 }

func (s PrioritySet) Members() []Priority {
	var out []Priority
	for _, p := range Priorities {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// FilterSpec is the full set of user-selected query constraints.
type FilterSpec struct {
	SearchQuery    string      `json:"search_query"`
	SearchRangeAll bool        `json:"search_range_all"`
	NotebookID     int64       `json:"notebook_id"`
	FavoriteOnly   bool        `json:"favorite_only"`
	States         StateSet    `json:"states"`
	Priorities     PrioritySet `json:"priorities"`
	DateEnabled    bool        `json:"date_enabled"`
	DateRangeStart time.Time   `json:"date_range_start"`
	DateRangeEnd   time.Time   `json:"date_range_end"`
	Sort           SortSpec    `json:"sort"`
}

func DefaultFilterSpec() FilterSpec {
	return FilterSpec{
		NotebookID: NoNotebook,
		States:     AllStates,
		Priorities: AllPriorities,
		Sort: SortSpec{
			PriorityOrder: PriorityOrderNone,
			OrderEnabled:  true,
			Condition:     SortUpdatedDesc,
		},
	}
}

// Equal compares specs field by field; time values are compared by instant.
func (f FilterSpec) Equal(o FilterSpec) bool {
	return f.SearchQuery == o.SearchQuery &&
		f.SearchRangeAll == o.SearchRangeAll &&
		f.NotebookID == o.NotebookID &&
		f.FavoriteOnly == o.FavoriteOnly &&
		f.States == o.States &&
		f.Priorities == o.Priorities &&
		f.DateEnabled == o.DateEnabled &&
		f.DateRangeStart.Equal(o.DateRangeStart) &&
		f.DateRangeEnd.Equal(o.DateRangeEnd) &&
		f.Sort == o.Sort
}

// Scope returns the notebook scope the spec lists from.
func (f FilterSpec) Scope() NotebookScope {
	if f.SearchRangeAll {
		return NotebookScope{All: true}
	}
	return NotebookScope{NotebookID: f.NotebookID}
}

type NotebookScope struct {
	All        bool  `json:"all"`
	NotebookID int64 `json:"notebook_id"`
}

// Contains reports whether a task in the given notebook belongs to the scope.
func (s NotebookScope) Contains(notebookID int64) bool {
	return s.All || s.NotebookID == notebookID
}

type AggregateCount struct {
	Total       int64 `json:"total"`
	High        int64 `json:"high"`
	Medium      int64 `json:"medium"`
	Low         int64 `json:"low"`
	None        int64 `json:"none"`
	Completed   int64 `json:"completed"`
	Cancelled   int64 `json:"cancelled"`
	Active      int64 `json:"active"`
	Suspended   int64 `json:"suspended"`
	Waiting     int64 `json:"waiting"`
	NotAssigned int64 `json:"not_assigned"`
}

// Add counts one task into its buckets.
func (c *AggregateCount) Add(t Task) {
	c.Total++
	switch t.Priority {
	case PriorityHigh:
		c.High++
	case PriorityMedium:
		c.Medium++
	case PriorityLow:
		c.Low++
	default:
		c.None++
	}
	switch t.State {
	case StateCompleted:
		c.Completed++
	case StateCancelled:
		c.Cancelled++
	case StateActive:
		c.Active++
	case StateSuspended:
		c.Suspended++
	case StateWaiting:
		c.Waiting++
	default:
		c.NotAssigned++
	}
}

// Consistent checks that both bucket axes add up to Total.
func (c AggregateCount) Consistent() bool {
	return c.Total == c.High+c.Medium+c.Low+c.None &&
		c.Total == c.Completed+c.Cancelled+c.Active+c.Suspended+c.Waiting+c.NotAssigned
}
