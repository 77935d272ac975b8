package prefs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
)

const (
	keyPriorityOrder  = "priority_order"
	keySortCondition  = "sort_condition"
	keyOrderEnabled   = "order_enabled"
	keyDateEnabled    = "date_enabled"
	keyFavoriteOnly   = "favorite_only"
	keySearchRangeAll = "search_range_all"
	keyNotebookID     = "notebook_id"
	keyDateStart      = "date_range_start" // unix ms, 0 when open
	keyDateEnd        = "date_range_end"
)

func stateKey(st model.State) string       { return "state_" + st.String() }
func priorityKey(p model.Priority) string { return "priority_" + p.String() }

// Decode builds a spec from stored values. Missing or unreadable keys take
// the default.
func Decode(v Values) model.FilterSpec {
	spec := model.DefaultFilterSpec()

	if err := spec.Sort.PriorityOrder.UnmarshalText([]byte(v.String(keyPriorityOrder, spec.Sort.PriorityOrder.String()))); err != nil {
		spec.Sort.PriorityOrder = model.PriorityOrderNone
	}
	if err := spec.Sort.Condition.UnmarshalText([]byte(v.String(keySortCondition, spec.Sort.Condition.String()))); err != nil {
		spec.Sort.Condition = model.SortUpdatedDesc
	}
	spec.Sort.OrderEnabled = v.Bool(keyOrderEnabled, spec.Sort.OrderEnabled)
	spec.DateEnabled = v.Bool(keyDateEnabled, spec.DateEnabled)
	spec.FavoriteOnly = v.Bool(keyFavoriteOnly, spec.FavoriteOnly)
	spec.SearchRangeAll = v.Bool(keySearchRangeAll, spec.SearchRangeAll)
	spec.NotebookID = v.Int(keyNotebookID, spec.NotebookID)

	spec.States = 0
	for _, st := range model.States {
		if v.Bool(stateKey(st), true) {
			spec.States |= model.StateSetOf(st)
		}
	}
	spec.Priorities = 0
	for _, p := range model.Priorities {
		if v.Bool(priorityKey(p), true) {
			spec.Priorities |= model.PrioritySetOf(p)
		}
	}

	if ms := v.Int(keyDateStart, 0); ms != 0 {
		spec.DateRangeStart = time.UnixMilli(ms).UTC()
	}
	if ms := v.Int(keyDateEnd, 0); ms != 0 {
		spec.DateRangeEnd = time.UnixMilli(ms).UTC()
	}
	return spec
}

// Encode is the inverse of Decode. The search query is session state and is
// never stored.
func Encode(spec model.FilterSpec) Values {
	v := Values{
		keyPriorityOrder:  spec.Sort.PriorityOrder.String(),
		keySortCondition:  spec.Sort.Condition.String(),
		keyOrderEnabled:   spec.Sort.OrderEnabled,
		keyDateEnabled:    spec.DateEnabled,
		keyFavoriteOnly:   spec.FavoriteOnly,
		keySearchRangeAll: spec.SearchRangeAll,
		keyNotebookID:     spec.NotebookID,
		keyDateStart:      unixMilli(spec.DateRangeStart),
		keyDateEnd:        unixMilli(spec.DateRangeEnd),
	}
	for _, st := range model.States {
		v[stateKey(st)] = spec.States.Has(st)
	}
	for _, p := range model.Priorities {
		v[priorityKey(p)] = spec.Priorities.Has(p)
	}
	return v
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// State owns the current FilterSpec. Setters persist first and publish to
// subscribers after; a failed write leaves the state unchanged.
type State struct {
	store Store
	log   *zap.Logger

	mu   sync.Mutex
	spec model.FilterSpec
	subs map[chan model.FilterSpec]struct{}
}

type Option func(*State)

func WithLogger(l *zap.Logger) Option {
	return func(s *State) { s.log = l }
}

// Open loads the stored preferences, falling back to defaults for every
// missing key.
func Open(store Store, opts ...Option) (*State, error) {
	v, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	s := &State{
		store: store,
		log:   zap.NewNop(),
		spec:  Decode(v),
		subs:  make(map[chan model.FilterSpec]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *State) Spec() model.FilterSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Subscribe delivers the current spec, then every change. A slow reader
// only sees the latest spec. The channel closes with ctx.
func (s *State) Subscribe(ctx context.Context) <-chan model.FilterSpec {
	ch := make(chan model.FilterSpec, 1)
	s.mu.Lock()
	ch <- s.spec
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *State) publishLocked() {
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.spec
	}
}

func (s *State) update(persist bool, mutate func(*model.FilterSpec)) (model.FilterSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.spec
	mutate(&next)
	if persist {
		if err := s.store.Set(Encode(next)); err != nil {
			s.log.Error("failed to persist preferences", zap.Error(err))
			return s.spec, fmt.Errorf("save preferences: %w", err)
		}
	}
	s.spec = next
	s.publishLocked()
	return next, nil
}

func (s *State) SetPriorityOrder(o model.PriorityOrder) (model.FilterSpec, error) {
	return s.update(true, func(f *model.FilterSpec) { f.Sort.PriorityOrder = o })
}

func (s *State) SetSortCondition(c model.SortCondition) (model.FilterSpec, error) {
	return s.update(true, func(f *model.FilterSpec) { f.Sort.Condition = c })
}

func (s *State) ToggleDateEnabled() (model.FilterSpec, error) {
	return s.update(true, func(f *model.FilterSpec) { f.DateEnabled = !f.DateEnabled })
}

func (s *State) ToggleOrderEnabled() (model.FilterSpec, error) {
	return s.update(true, func(f *model.FilterSpec) { f.Sort.OrderEnabled = !f.Sort.OrderEnabled })
}

func (s *State) ToggleFavorite() (model.FilterSpec, error) {
	return s.update(true, func(f *model.FilterSpec) { f.FavoriteOnly = !f.FavoriteOnly })
}

// SelectNotebook scopes listing to one notebook and leaves search-all mode.
func (s *State) SelectNotebook(id int64) (model.FilterSpec, error) {
	return s.update(true, func(f *model.FilterSpec) {
		f.NotebookID = id
		f.SearchRangeAll = false
	})
}

func (s *State) SetSearchRangeAll(all bool) (model.FilterSpec, error) {
	return s.update(true, func(f *model.FilterSpec) { f.SearchRangeAll = all })
}

func (s *State) ToggleState(st model.State) (model.FilterSpec, error) {
	return s.update(true, func(f *model.FilterSpec) { f.States = f.States.Toggle(st) })
}

func (s *State) TogglePriority(p model.Priority) (model.FilterSpec, error) {
	return s.update(true, func(f *model.FilterSpec) { f.Priorities = f.Priorities.Toggle(p) })
}

// SetDateRange stores an inclusive range; a zero bound leaves that side open.
func (s *State) SetDateRange(start, end time.Time) (model.FilterSpec, error) {
	return s.update(true, func(f *model.FilterSpec) {
		f.DateRangeStart = start.UTC()
		f.DateRangeEnd = end.UTC()
	})
}

// SetSearchQuery only lives for the session.
func (s *State) SetSearchQuery(q string) (model.FilterSpec, error) {
	return s.update(false, func(f *model.FilterSpec) { f.SearchQuery = q })
}
