package paging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/notebook-tasks/internal/filter"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo/memory"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo/repotest"
)

// MockSource мок для Source
type MockSource struct {
	mock.Mock
}

func (m *MockSource) Query(ctx context.Context, q filter.Query, offset, limit int) ([]model.TaskDetail, error) {
	args := m.Called(ctx, q, offset, limit)
	items, _ := args.Get(0).([]model.TaskDetail)
	return items, args.Error(1)
}

func (m *MockSource) Count(ctx context.Context, q filter.Query) (model.AggregateCount, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(model.AggregateCount), args.Error(1)
}

func (m *MockSource) Get(ctx context.Context, id int64) (model.Task, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockSource) Subscribe(ctx context.Context) <-chan repo.Change {
	args := m.Called(ctx)
	return args.Get(0).(<-chan repo.Change)
}

func details(ids ...int64) []model.TaskDetail {
	out := make([]model.TaskDetail, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.TaskDetail{Task: model.Task{ID: id}})
	}
	return out
}

func seed(t *testing.T, s *memory.Store, clock *repotest.Clock, n int, mutate func(i int, task *model.Task)) []model.Task {
	t.Helper()
	out := make([]model.Task, 0, n)
	for i := 0; i < n; i++ {
		clock.Advance(time.Minute)
		task := model.Task{Title: fmt.Sprintf("task %02d", i), NotebookID: model.NoNotebook}
		if mutate != nil {
			mutate(i, &task)
		}
		created, err := s.Create(context.Background(), task)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func collect(t *testing.T, e *Engine, spec model.FilterSpec) []int64 {
	t.Helper()
	var ids []int64
	for p, err := range e.Pages(context.Background(), spec) {
		require.NoError(t, err)
		for _, d := range p.Items {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

func TestLoadKeys(t *testing.T) {
	clock := repotest.NewClock()
	s := memory.New(memory.WithClock(clock.Now))
	seed(t, s, clock, 45, nil)
	e := NewEngine(s)
	spec := model.DefaultFilterSpec()

	tests := []struct {
		page int
		size int
		prev *int
		next *int
	}{
		{page: 1, size: 20, prev: nil, next: ptr(2)},
		{page: 2, size: 20, prev: ptr(1), next: ptr(3)},
		{page: 3, size: 5, prev: ptr(2), next: nil},
		{page: 4, size: 0, prev: ptr(3), next: nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			p, err := e.Load(context.Background(), tt.page, spec)
			require.NoError(t, err)
			assert.Equal(t, tt.page, p.Number)
			assert.Len(t, p.Items, tt.size)
			assert.Equal(t, tt.prev, p.PrevKey)
			assert.Equal(t, tt.next, p.NextKey)
		})
	}

	_, err := e.Load(context.Background(), 0, spec)
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func ptr(v int) *int { return &v }

func TestEmptyMaskSkipsStore(t *testing.T) {
	src := new(MockSource)
	e := NewEngine(src)

	for _, spec := range []model.FilterSpec{
		func() model.FilterSpec { s := model.DefaultFilterSpec(); s.States = 0; return s }(),
		func() model.FilterSpec { s := model.DefaultFilterSpec(); s.Priorities = 0; return s }(),
	} {
		for page := 1; page <= 3; page++ {
			p, err := e.Load(context.Background(), page, spec)
			require.NoError(t, err)
			assert.Empty(t, p.Items)
			assert.NotNil(t, p.Items)
			assert.Nil(t, p.NextKey)
		}
	}
	src.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadIsIdempotent(t *testing.T) {
	clock := repotest.NewClock()
	s := memory.New(memory.WithClock(clock.Now))
	seed(t, s, clock, 30, func(i int, task *model.Task) { task.Priority = model.Priority(i % 4) })
	e := NewEngine(s)
	spec := model.DefaultFilterSpec()
	spec.Sort.PriorityOrder = model.PriorityOrderHighFirst

	first, err := e.Load(context.Background(), 2, spec)
	require.NoError(t, err)
	e.Invalidate()
	second, err := e.Load(context.Background(), 2, spec)
	require.NoError(t, err)
	assert.Equal(t, first.Items, second.Items)
	assert.Greater(t, second.Version, first.Version)
}

func TestOrderingLaw(t *testing.T) {
	clock := repotest.NewClock()
	s := memory.New(memory.WithClock(clock.Now))
	// Created in order: low (oldest), none, high, medium, high (newest).
	tasks := seed(t, s, clock, 5, func(i int, task *model.Task) {
		task.Priority = []model.Priority{model.PriorityLow, model.PriorityNone, model.PriorityHigh, model.PriorityMedium, model.PriorityHigh}[i]
	})
	ids := func(idx ...int) []int64 {
		out := make([]int64, 0, len(idx))
		for _, i := range idx {
			out = append(out, tasks[i].ID)
		}
		return out
	}
	e := NewEngine(s)

	tests := []struct {
		name string
		sort model.SortSpec
		want []int64
	}{
		{"high first, newest first", model.SortSpec{PriorityOrder: model.PriorityOrderHighFirst, OrderEnabled: true, Condition: model.SortUpdatedDesc}, ids(4, 2, 3, 0, 1)},
		{"high first, oldest first", model.SortSpec{PriorityOrder: model.PriorityOrderHighFirst, OrderEnabled: true, Condition: model.SortCreatedAsc}, ids(2, 4, 3, 0, 1)},
		{"low first", model.SortSpec{PriorityOrder: model.PriorityOrderLowFirst, OrderEnabled: true, Condition: model.SortUpdatedDesc}, ids(0, 3, 4, 2, 1)},
		{"no priority order", model.SortSpec{PriorityOrder: model.PriorityOrderNone, OrderEnabled: true, Condition: model.SortUpdatedAsc}, ids(0, 1, 2, 3, 4)},
		{"date order disabled", model.SortSpec{PriorityOrder: model.PriorityOrderNone, OrderEnabled: false, Condition: model.SortUpdatedDesc}, ids(0, 1, 2, 3, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := model.DefaultFilterSpec()
			spec.Sort = tt.sort
			assert.Equal(t, tt.want, collect(t, e, spec))
		})
	}
}

func TestPaginationLaw(t *testing.T) {
	clock := repotest.NewClock()
	s := memory.New(memory.WithClock(clock.Now))
	all := seed(t, s, clock, 67, func(i int, task *model.Task) {
		task.Priority = model.Priority(i % 4)
		task.State = model.State(i % 6)
		task.Favorite = i%3 == 0
	})
	e := NewEngine(s)
	spec := model.DefaultFilterSpec()
	spec.Sort.PriorityOrder = model.PriorityOrderLowFirst
	spec.States = spec.States.Toggle(model.StateCancelled)

	want := filter.Compile(spec).Apply(all)
	for k := 1; k <= 4; k++ {
		var got []int64
		for n := 1; n <= k; n++ {
			p, err := e.Load(context.Background(), n, spec)
			require.NoError(t, err)
			got = append(got, idsOf(p.Items)...)
		}
		limit := min(PageSize*k, len(want))
		wantIDs := make([]int64, 0, limit)
		for _, task := range want[:limit] {
			wantIDs = append(wantIDs, task.ID)
		}
		assert.Equal(t, wantIDs, got, "k=%d", k)
	}
}

func idsOf(ds []model.TaskDetail) []int64 {
	out := make([]int64, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}

func TestSoftDeleteLaw(t *testing.T) {
	clock := repotest.NewClock()
	s := memory.New(memory.WithClock(clock.Now))
	tasks := seed(t, s, clock, 5, nil)
	e := NewEngine(s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := s.Subscribe(ctx)
	go func() { _ = e.Watch(ctx, changes) }()

	spec := model.DefaultFilterSpec()
	require.Contains(t, collect(t, e, spec), tasks[2].ID)

	invalidated := e.Invalidated()
	_, err := s.SetDeleted(context.Background(), []int64{tasks[2].ID}, true)
	require.NoError(t, err)
	select {
	case <-invalidated:
	case <-time.After(2 * time.Second):
		t.Fatal("engine was not invalidated by the store change")
	}

	assert.NotContains(t, collect(t, e, spec), tasks[2].ID)
	c, err := s.Count(context.Background(), filter.CompileScope(spec.Scope()))
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Total)

	got, err := s.Get(context.Background(), tasks[2].ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
}

func TestChangesOutsideScopeKeepPages(t *testing.T) {
	e := NewEngine(new(MockSource))
	spec := model.DefaultFilterSpec()
	e.SetSpec(spec)
	v := e.Version()

	e.applyChange(repo.Change{Tasks: []int64{1}, Notebooks: []int64{7}})
	assert.Equal(t, v, e.Version())

	e.applyChange(repo.Change{Tasks: []int64{2}, Notebooks: []int64{7, model.NoNotebook}})
	assert.Equal(t, v+1, e.Version())

	spec.SearchRangeAll = true
	e.SetSpec(spec)
	e.applyChange(repo.Change{Tasks: []int64{1}, Notebooks: []int64{7}})
	assert.Equal(t, v+3, e.Version())
}

func TestRunStopsWhenStoreCloses(t *testing.T) {
	s := memory.New()
	e := NewEngine(s)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		_ = s.Close()
		select {
		case err := <-done:
			return err == nil
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFavoriteHighScenario(t *testing.T) {
	clock := repotest.NewClock()
	s := memory.New(memory.WithClock(clock.Now))
	setup := []struct {
		fav bool
		p   model.Priority
	}{
		{true, model.PriorityHigh}, {true, model.PriorityHigh}, {true, model.PriorityLow},
		{false, model.PriorityHigh}, {false, model.PriorityHigh},
	}
	seed(t, s, clock, len(setup), func(i int, task *model.Task) {
		task.Favorite = setup[i].fav
		task.Priority = setup[i].p
	})
	e := NewEngine(s)
	spec := model.DefaultFilterSpec()
	spec.FavoriteOnly = true
	spec.Priorities = model.PrioritySetOf(model.PriorityHigh)

	p, err := e.Load(context.Background(), 1, spec)
	require.NoError(t, err)
	require.Len(t, p.Items, 2)
	for _, d := range p.Items {
		assert.True(t, d.Favorite)
		assert.Equal(t, model.PriorityHigh, d.Priority)
	}
}

func TestDateRangeScenario(t *testing.T) {
	clock := repotest.NewClock()
	s := memory.New(memory.WithClock(clock.Now))
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }
	clock.Advance(day(10).Add(12 * time.Hour).Sub(clock.Now()))
	task, err := s.Create(context.Background(), model.Task{Title: "day ten", NotebookID: model.NoNotebook})
	require.NoError(t, err)
	e := NewEngine(s)

	spec := model.DefaultFilterSpec()
	spec.DateEnabled = true
	spec.DateRangeStart = day(11)
	spec.DateRangeEnd = day(20)
	p, err := e.Load(context.Background(), 1, spec)
	require.NoError(t, err)
	assert.Empty(t, p.Items)

	spec.DateRangeStart = day(9)
	spec.DateRangeEnd = day(11)
	p, err = e.Load(context.Background(), 1, spec)
	require.NoError(t, err)
	assert.Equal(t, []int64{task.ID}, idsOf(p.Items))

	spec.DateEnabled = false
	spec.DateRangeStart = day(11)
	p, err = e.Load(context.Background(), 1, spec)
	require.NoError(t, err)
	assert.Equal(t, []int64{task.ID}, idsOf(p.Items))
}

func TestCachedPageSkipsStore(t *testing.T) {
	src := new(MockSource)
	src.On("Query", mock.Anything, mock.Anything, 0, PageSize).Return(details(1, 2, 3), nil).Twice()
	e := NewEngine(src)
	spec := model.DefaultFilterSpec()

	for i := 0; i < 3; i++ {
		p, err := e.Load(context.Background(), 1, spec)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3}, idsOf(p.Items))
	}
	e.Invalidate()
	_, err := e.Load(context.Background(), 1, spec)
	require.NoError(t, err)
	src.AssertNumberOfCalls(t, "Query", 2)
}

func TestConcurrentLoadsShareOneQuery(t *testing.T) {
	release := make(chan struct{})
	src := new(MockSource)
	src.On("Query", mock.Anything, mock.Anything, PageSize, PageSize).
		Run(func(mock.Arguments) { <-release }).
		Return(details(21, 22), nil).Once()
	e := NewEngine(src)
	spec := model.DefaultFilterSpec()

	var wg sync.WaitGroup
	results := make([]Page, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := e.Load(context.Background(), 2, spec)
			assert.NoError(t, err)
			results[i] = p
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, p := range results {
		assert.Equal(t, []int64{21, 22}, idsOf(p.Items))
	}
	src.AssertNumberOfCalls(t, "Query", 1)
}

func TestSpecChangeMakesInFlightLoadStale(t *testing.T) {
	started := make(chan struct{})
	src := new(MockSource)
	src.On("Query", mock.Anything, mock.Anything, 0, PageSize).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled).Once()
	e := NewEngine(src)
	old := model.DefaultFilterSpec()

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Load(context.Background(), 1, old)
		errCh <- err
	}()
	<-started

	next := old
	next.SearchQuery = "changed"
	assert.True(t, e.SetSpec(next))
	assert.False(t, e.SetSpec(next))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStale)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight load was not cancelled")
	}
}

func TestPagesDropsStaleResults(t *testing.T) {
	src := new(MockSource)
	e := NewEngine(src)
	spec := model.DefaultFilterSpec()
	full := make([]int64, PageSize)
	for i := range full {
		full[i] = int64(i + 1)
	}
	src.On("Query", mock.Anything, mock.Anything, 0, PageSize).Return(details(full...), nil).Once()
	src.On("Query", mock.Anything, mock.Anything, PageSize, PageSize).
		Run(func(mock.Arguments) { e.Invalidate() }).
		Return(details(21), nil).Once()

	var pages []Page
	for p, err := range e.Pages(context.Background(), spec) {
		require.NoError(t, err)
		pages = append(pages, p)
	}
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
}

func TestStoreFailureIsTyped(t *testing.T) {
	ioErr := &repo.IOError{Op: "query tasks", Err: errors.New("disk I/O error")}
	src := new(MockSource)
	src.On("Query", mock.Anything, mock.Anything, PageSize, PageSize).Return(nil, ioErr).Once()
	src.On("Query", mock.Anything, mock.Anything, PageSize, PageSize).Return(details(21), nil).Once()
	e := NewEngine(src)
	spec := model.DefaultFilterSpec()

	_, err := e.Load(context.Background(), 2, spec)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, 2, loadErr.Page)
	assert.Equal(t, e.Version(), loadErr.Version)
	assert.ErrorIs(t, err, ioErr)

	p, err := e.Load(context.Background(), 2, spec)
	require.NoError(t, err)
	assert.Equal(t, []int64{21}, idsOf(p.Items))
}

func TestPagesYieldsLoadError(t *testing.T) {
	src := new(MockSource)
	src.On("Query", mock.Anything, mock.Anything, 0, PageSize).Return(nil, errors.New("closed")).Once()
	e := NewEngine(src)

	var errs []error
	for _, err := range e.Pages(context.Background(), model.DefaultFilterSpec()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	var loadErr *LoadError
	assert.ErrorAs(t, errs[0], &loadErr)
}

func TestFollow(t *testing.T) {
	e := NewEngine(new(MockSource))
	specs := make(chan model.FilterSpec)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Follow(ctx, specs) }()

	spec := model.DefaultFilterSpec()
	spec.FavoriteOnly = true
	specs <- spec
	require.Eventually(t, func() bool { return e.Version() == 1 }, time.Second, 5*time.Millisecond)
	specs <- spec
	close(specs)
	require.NoError(t, <-done)
	assert.Equal(t, uint64(1), e.Version())
	cancel()
}
