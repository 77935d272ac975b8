package model

import (
	"fmt"
	"strings"
	"time"
)

// NoNotebook is the notebook id of tasks that live in the default scope.
const NoNotebook int64 = -1

type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

var priorityNames = [...]string{"none", "low", "medium", "high"}

// Priorities lists every priority value, highest first.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow, PriorityNone}

func (p Priority) Valid() bool { return p >= PriorityNone && p <= PriorityHigh }

func (p Priority) String() string {
	if !p.Valid() {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityNone, nil
	}
	for i, name := range priorityNames {
		if name == s {
			return Priority(i), nil
		}
	}
	return PriorityNone, fmt.Errorf("unknown priority %q", s)
}

// State is the progression state of a task.
type State int

const (
	StateNone State = iota
	StateWaiting
	StateSuspended
	StateActive
	StateCompleted
	StateCancelled
)

var stateNames = [...]string{"none", "waiting", "suspended", "active", "completed", "cancelled"}

var States = []State{StateNone, StateWaiting, StateSuspended, StateActive, StateCompleted, StateCancelled}

func (s State) Valid() bool { return s >= StateNone && s <= StateCancelled }

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Finished reports whether the state ends the task lifecycle.
func (s State) Finished() bool { return s == StateCompleted || s == StateCancelled }

func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseState(s string) (State, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StateNone, nil
	}
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	return StateNone, fmt.Errorf("unknown state %q", s)
}

type ReminderType int

const (
	ReminderNone ReminderType = iota
	ReminderAtDue
	ReminderBefore
)

// MaxReminderOffset is the longest lead time of a BEFORE reminder, in minutes.
const MaxReminderOffset = 7 * 24 * 60

func (r ReminderType) Valid() bool { return r >= ReminderNone && r <= ReminderBefore }

type Task struct {
	ID             int64        `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Priority       Priority     `json:"priority"`
	State          State        `json:"state"`
	Favorite       bool         `json:"favorite"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
	DueDate        *time.Time   `json:"due_date,omitempty"`
	NotebookID     int64        `json:"notebook_id"`
	Deleted        bool         `json:"deleted"`
	ReminderType   ReminderType `json:"reminder_type"`
	ReminderOffset int64        `json:"reminder_offset"` // minutes before DueDate
}

// ReminderAt returns the moment the task reminder fires, if it has one.
func (t Task) ReminderAt() (time.Time, bool) {
	if t.DueDate == nil {
		return time.Time{}, false
	}
	switch t.ReminderType {
	case ReminderAtDue:
		return *t.DueDate, true
	case ReminderBefore:
		return t.DueDate.Add(-time.Duration(t.ReminderOffset) * time.Minute), true
	default:
		return time.Time{}, false
	}
}

type Notebook struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Photo struct {
	ID        string    `json:"id"`
	TaskID    int64     `json:"task_id"`
	URI       string    `json:"uri"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskDetail is a task joined with its notebook and attached photos.
// Notebook is nil for the default scope and for dangling references.
type TaskDetail struct {
	Task
	Notebook *Notebook `json:"notebook,omitempty"`
	Photos   []Photo   `json:"photos"`
}

// BatchResult reports which ids of a batch write were applied.
type BatchResult struct {
	Applied []int64 `json:"applied"`
	Missing []int64 `json:"missing"`
}
