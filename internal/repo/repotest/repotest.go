// Package repotest runs one behavioural suite against every repo.Store backend.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/BuzzLyutic/notebook-tasks/internal/filter"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock() *Clock {
	return &Clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Factory opens an empty store using clock for mutation stamps.
type Factory func(t *testing.T, clock repo.Clock) repo.Store

func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s repo.Store, c *Clock)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateUnknownNotebook", testCreateUnknownNotebook},
		{"UpdateKeepsCreatedAt", testUpdate},
		{"QueryMatchesReference", testQueryMatchesReference},
		{"QueryWindows", testQueryWindows},
		{"CountMatchesReference", testCountMatchesReference},
		{"SetDeletedBatch", testSetDeleted},
		{"MoveToNotebook", testMove},
		{"SetState", testSetState},
		{"CopyToNotebook", testCopy},
		{"DeleteNotebookCascades", testDeleteNotebook},
		{"Photos", testPhotos},
		{"Purge", testPurge},
		{"Subscribe", testSubscribe},
		{"ListReminders", testListReminders},
		{"ConcurrentReadsAndWrites", testConcurrentReadsAndWrites},
		{"UnicodeSearch", testUnicodeSearch},
		{"CountBeforeAnchor", testCountBefore},
		{"CanceledContext", testCanceledContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClock()
			s := open(t, c.Now)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s, c)
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }

func testCreateAndGet(t *testing.T, s repo.Store, c *Clock) {
	ctx := context.Background()
	c.Advance(123456 * time.Microsecond)
	due := c.Now().Add(48*time.Hour + 999*time.Microsecond)

	created, err := s.Create(ctx, model.Task{
		Title:          "Buy milk",
		Description:    "2 litres",
		Priority:       model.PriorityHigh,
		State:          model.StateWaiting,
		DueDate:        &due,
		NotebookID:     model.NoNotebook,
		ReminderType:   model.ReminderBefore,
		ReminderOffset: 30,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, repo.Stamp(c.Now()), created.CreatedAt)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	require.NotNil(t, created.DueDate)
	assert.Equal(t, repo.Stamp(due), *created.DueDate)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = s.Get(ctx, created.ID+100)
	assert.ErrorIs(t, err, repo.ErrorNotFound)
}

func testCreateUnknownNotebook(t *testing.T, s repo.Store, _ *Clock) {
	_, err := s.Create(context.Background(), model.Task{Title: "orphan", NotebookID: 42})
	assert.ErrorIs(t, err, repo.ErrInvalidReference)
}

func testUpdate(t *testing.T, s repo.Store, c *Clock) {
	ctx := context.Background()
	nb, err := s.CreateNotebook(ctx, model.Notebook{Title: "Home"})
	require.NoError(t, err)
	created, err := s.Create(ctx, model.Task{Title: "draft", NotebookID: model.NoNotebook})
	require.NoError(t, err)

	c.Advance(time.Minute)
	created.Title = "final"
	created.NotebookID = nb.ID
	updated, err := s.Update(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, repo.Stamp(c.Now()), updated.UpdatedAt)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	created.ID = 999
	_, err = s.Update(ctx, created)
	assert.ErrorIs(t, err, repo.ErrorNotFound)
}

// fixture creates a varied data set and returns every stored task.
func fixture(t *testing.T, s repo.Store, c *Clock) (model.Notebook, []model.Task) {
	t.Helper()
	ctx := context.Background()
	nb, err := s.CreateNotebook(ctx, model.Notebook{Title: "Work", Priority: model.PriorityMedium})
	require.NoError(t, err)

	var ids []int64
	for i := 0; i < 24; i++ {
		// Every fourth task shares its timestamp with the previous one.
		if i%4 != 0 {
			c.Advance(time.Minute)
		}
		notebook := model.NoNotebook
		if i%3 == 0 {
			notebook = nb.ID
		}
		title := fmt.Sprintf("Task %d", i)
		if i%5 == 0 {
			title = fmt.Sprintf("Buy GROCERIES %d", i)
		}
		desc := ""
		if i%7 == 0 {
			desc = "remember the groceries list"
		}
		created, err := s.Create(ctx, model.Task{
			Title:       title,
			Description: desc,
			Priority:    model.Priority(i % 4),
			State:       model.State(i % 6),
			Favorite:    i%2 == 0,
			NotebookID:  notebook,
		})
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}
	// Touch a few so updated and created orders differ.
	for _, i := range []int{2, 9, 17} {
		c.Advance(time.Minute)
		_, err := s.SetFavorite(ctx, ids[i], true)
		require.NoError(t, err)
	}
	_, err = s.SetDeleted(ctx, []int64{ids[4], ids[11]}, true)
	require.NoError(t, err)

	all := make([]model.Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.Get(ctx, id)
		require.NoError(t, err)
		all = append(all, task)
	}
	return nb, all
}

func specs(nb model.Notebook, start, end time.Time) map[string]model.FilterSpec {
	base := model.DefaultFilterSpec()
	out := map[string]model.FilterSpec{"default": base}

	s := base
	s.NotebookID = nb.ID
	out["notebook"] = s

	s = base
	s.SearchRangeAll = true
	out["all notebooks"] = s

	s = base
	s.SearchRangeAll = true
	s.SearchQuery = "groceries"
	out["text"] = s

	s = base
	s.SearchRangeAll = true
	s.FavoriteOnly = true
	s.Sort.Condition = model.SortCreatedAsc
	out["favorite created asc"] = s

	s = base
	s.SearchRangeAll = true
	s.States = model.StateSetOf(model.StateWaiting, model.StateActive)
	s.Priorities = model.PrioritySetOf(model.PriorityHigh, model.PriorityNone)
	s.Sort.PriorityOrder = model.PriorityOrderHighFirst
	out["masks high first"] = s

	s = base
	s.SearchRangeAll = true
	s.Sort.PriorityOrder = model.PriorityOrderLowFirst
	s.Sort.Condition = model.SortUpdatedAsc
	out["low first updated asc"] = s

	s = base
	s.SearchRangeAll = true
	s.Sort.OrderEnabled = false
	s.Sort.PriorityOrder = model.PriorityOrderHighFirst
	out["order disabled"] = s

	s = base
	s.SearchRangeAll = true
	s.DateEnabled = true
	s.DateRangeStart = start
	s.DateRangeEnd = end
	s.Sort.Condition = model.SortCreatedDesc
	out["date range"] = s

	s = base
	s.SearchRangeAll = true
	s.DateEnabled = true
	s.DateRangeStart = start
	out["open end"] = s

	s = base
	s.SearchRangeAll = true
	s.States = 0
	out["empty state mask"] = s
	return out
}

func ids(tasks []model.Task) []int64 {
	out := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func detailIDs(ds []model.TaskDetail) []int64 {
	out := make([]int64, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}

func testQueryMatchesReference(t *testing.T, s repo.Store, c *Clock) {
	nb, all := fixture(t, s, c)
	start := all[5].CreatedAt
	end := all[15].CreatedAt
	for name, spec := range specs(nb, start, end) {
		t.Run(name, func(t *testing.T) {
			q := filter.Compile(spec)
			want := ids(q.Apply(all))
			got, err := s.Query(context.Background(), q, 0, 100)
			require.NoError(t, err)
			assert.Equal(t, want, detailIDs(got))
		})
	}
}

func testQueryWindows(t *testing.T, s repo.Store, c *Clock) {
	nb, all := fixture(t, s, c)
	spec := model.DefaultFilterSpec()
	spec.SearchRangeAll = true
	q := filter.Compile(spec)

	var got []int64
	for offset := 0; ; offset += 5 {
		page, err := s.Query(context.Background(), q, offset, 5)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 5)
		for _, d := range page {
			if d.NotebookID == nb.ID {
				require.NotNil(t, d.Notebook)
				assert.Equal(t, "Work", d.Notebook.Title)
			} else {
				assert.Nil(t, d.Notebook)
			}
			assert.NotNil(t, d.Photos)
		}
		got = append(got, detailIDs(page)...)
	}
	assert.Equal(t, ids(q.Apply(all)), got)
}

func testCountMatchesReference(t *testing.T, s repo.Store, c *Clock) {
	nb, all := fixture(t, s, c)
	ctx := context.Background()

	scopes := []model.NotebookScope{
		{All: true},
		{NotebookID: nb.ID},
		{NotebookID: model.NoNotebook},
	}
	for _, scope := range scopes {
		want := model.AggregateCount{}
		for _, task := range all {
			if !task.Deleted && scope.Contains(task.NotebookID) {
				want.Add(task)
			}
		}
		got, err := s.Count(ctx, filter.CompileScope(scope))
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.True(t, got.Consistent())
	}

	spec := model.DefaultFilterSpec()
	spec.FavoriteOnly = true
	spec.SearchQuery = "GROCERIES"
	q := filter.CompileCount(model.NotebookScope{All: true}, spec)
	want := model.AggregateCount{}
	for _, task := range q.Apply(all) {
		want.Add(task)
	}
	got, err := s.Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	spec.Priorities = 0
	got, err = s.Count(ctx, filter.CompileCount(model.NotebookScope{All: true}, spec))
	require.NoError(t, err)
	assert.Equal(t, model.AggregateCount{}, got)
}

func testSetDeleted(t *testing.T, s repo.Store, c *Clock) {
	ctx := context.Background()
	a, err := s.Create(ctx, model.Task{Title: "a", NotebookID: model.NoNotebook})
	require.NoError(t, err)
	b, err := s.Create(ctx, model.Task{Title: "b", NotebookID: model.NoNotebook})
	require.NoError(t, err)

	c.Advance(time.Second)
	res, err := s.SetDeleted(ctx, []int64{a.ID, 777, b.ID}, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, res.Applied)
	assert.Equal(t, []int64{777}, res.Missing)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, repo.Stamp(c.Now()), got.UpdatedAt)

	list, err := s.Query(ctx, filter.Compile(model.DefaultFilterSpec()), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.SetDeleted(ctx, []int64{a.ID}, false)
	require.NoError(t, err)
	list, err = s.Query(ctx, filter.Compile(model.DefaultFilterSpec()), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, detailIDs(list))
}

func testMove(t *testing.T, s repo.Store, _ *Clock) {
	ctx := context.Background()
	nb, err := s.CreateNotebook(ctx, model.Notebook{Title: "Trip"})
	require.NoError(t, err)
	a, err := s.Create(ctx, model.Task{Title: "a", NotebookID: model.NoNotebook})
	require.NoError(t, err)

	_, err = s.MoveToNotebook(ctx, []int64{a.ID}, nb.ID+50)
	assert.ErrorIs(t, err, repo.ErrInvalidReference)
	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NoNotebook, got.NotebookID)

	res, err := s.MoveToNotebook(ctx, []int64{a.ID}, nb.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, res.Applied)
	assert.Empty(t, res.Missing)

	spec := model.DefaultFilterSpec()
	spec.NotebookID = nb.ID
	list, err := s.Query(ctx, filter.Compile(spec), 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Notebook)
	assert.Equal(t, "Trip", list[0].Notebook.Title)
}

func testSetState(t *testing.T, s repo.Store, c *Clock) {
	ctx := context.Background()
	a, err := s.Create(ctx, model.Task{Title: "a", NotebookID: model.NoNotebook})
	require.NoError(t, err)

	c.Advance(time.Hour)
	done := c.Now()
	res, err := s.SetState(ctx, []int64{a.ID}, model.StateCompleted, &done)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, res.Applied)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, got.State)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, repo.Stamp(done), *got.FinishedAt)

	_, err = s.SetState(ctx, []int64{a.ID}, model.StateActive, nil)
	require.NoError(t, err)
	got, err = s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateActive, got.State)
	assert.Nil(t, got.FinishedAt)
}

func testCopy(t *testing.T, s repo.Store, c *Clock) {
	ctx := context.Background()
	nb, err := s.CreateNotebook(ctx, model.Notebook{Title: "Copies"})
	require.NoError(t, err)
	src, err := s.Create(ctx, model.Task{Title: "src", Priority: model.PriorityLow, NotebookID: model.NoNotebook})
	require.NoError(t, err)
	gone, err := s.Create(ctx, model.Task{Title: "gone", NotebookID: model.NoNotebook})
	require.NoError(t, err)
	_, err = s.SetDeleted(ctx, []int64{gone.ID}, true)
	require.NoError(t, err)

	c.Advance(time.Minute)
	copies, err := s.CopyToNotebook(ctx, []int64{src.ID, gone.ID, 4242}, nb.ID)
	require.NoError(t, err)
	require.Len(t, copies, 1)
	assert.NotEqual(t, src.ID, copies[0].ID)
	assert.Equal(t, "src", copies[0].Title)
	assert.Equal(t, model.PriorityLow, copies[0].Priority)
	assert.Equal(t, nb.ID, copies[0].NotebookID)
	assert.Equal(t, repo.Stamp(c.Now()), copies[0].CreatedAt)

	orig, err := s.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NoNotebook, orig.NotebookID)
}

func testDeleteNotebook(t *testing.T, s repo.Store, _ *Clock) {
	ctx := context.Background()
	nb, err := s.CreateNotebook(ctx, model.Notebook{Title: "Old"})
	require.NoError(t, err)
	a, err := s.Create(ctx, model.Task{Title: "a", NotebookID: nb.ID})
	require.NoError(t, err)
	b, err := s.Create(ctx, model.Task{Title: "b", NotebookID: model.NoNotebook})
	require.NoError(t, err)

	require.NoError(t, s.DeleteNotebook(ctx, nb.ID))
	assert.ErrorIs(t, s.DeleteNotebook(ctx, nb.ID), repo.ErrorNotFound)

	_, err = s.GetNotebook(ctx, nb.ID)
	assert.ErrorIs(t, err, repo.ErrorNotFound)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	got, err = s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, got.Deleted)

	list, err := s.ListNotebooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testPhotos(t *testing.T, s repo.Store, c *Clock) {
	ctx := context.Background()
	a, err := s.Create(ctx, model.Task{Title: "a", NotebookID: model.NoNotebook})
	require.NoError(t, err)

	p1, err := s.AddPhoto(ctx, model.Photo{TaskID: a.ID, URI: "file:///one.jpg"})
	require.NoError(t, err)
	assert.NotEmpty(t, p1.ID)
	c.Advance(time.Second)
	p2, err := s.AddPhoto(ctx, model.Photo{TaskID: a.ID, URI: "file:///two.jpg"})
	require.NoError(t, err)

	_, err = s.AddPhoto(ctx, model.Photo{TaskID: a.ID + 10, URI: "x"})
	assert.ErrorIs(t, err, repo.ErrorNotFound)

	photos, err := s.ListPhotos(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Photo{p1, p2}, photos)

	list, err := s.Query(ctx, filter.Compile(model.DefaultFilterSpec()), 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []model.Photo{p1, p2}, list[0].Photos)

	require.NoError(t, s.DeletePhoto(ctx, p1.ID))
	assert.ErrorIs(t, s.DeletePhoto(ctx, p1.ID), repo.ErrorNotFound)
	photos, err = s.ListPhotos(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Photo{p2}, photos)
}

func testPurge(t *testing.T, s repo.Store, _ *Clock) {
	ctx := context.Background()
	a, err := s.Create(ctx, model.Task{Title: "a", NotebookID: model.NoNotebook})
	require.NoError(t, err)
	_, err = s.AddPhoto(ctx, model.Photo{TaskID: a.ID, URI: "file:///a.jpg"})
	require.NoError(t, err)

	require.NoError(t, s.Purge(ctx, a.ID))
	_, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, repo.ErrorNotFound)
	photos, err := s.ListPhotos(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, photos)
	assert.ErrorIs(t, s.Purge(ctx, a.ID), repo.ErrorNotFound)
}

func testSubscribe(t *testing.T, s repo.Store, _ *Clock) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	nb, err := s.CreateNotebook(ctx, model.Notebook{Title: "N"})
	require.NoError(t, err)
	a, err := s.Create(ctx, model.Task{Title: "a", NotebookID: nb.ID})
	require.NoError(t, err)

	select {
	case change := <-ch:
		assert.Contains(t, change.Tasks, a.ID)
		assert.True(t, change.Touches(nb.ID))
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func testListReminders(t *testing.T, s repo.Store, c *Clock) {
	ctx := context.Background()
	now := c.Now()
	mk := func(title string, due *time.Time, rt model.ReminderType, st model.State) model.Task {
		task, err := s.Create(ctx, model.Task{Title: title, DueDate: due, ReminderType: rt, State: st, NotebookID: model.NoNotebook})
		require.NoError(t, err)
		return task
	}
	soon := mk("soon", ptr(now.Add(time.Hour)), model.ReminderAtDue, model.StateActive)
	mk("no reminder", ptr(now.Add(time.Hour)), model.ReminderNone, model.StateActive)
	mk("finished", ptr(now.Add(time.Hour)), model.ReminderAtDue, model.StateCompleted)
	mk("far", ptr(now.Add(72*time.Hour)), model.ReminderAtDue, model.StateActive)
	mk("no due", nil, model.ReminderAtDue, model.StateActive)
	gone := mk("gone", ptr(now.Add(2*time.Hour)), model.ReminderBefore, model.StateWaiting)
	_, err := s.SetDeleted(ctx, []int64{gone.ID}, true)
	require.NoError(t, err)

	got, err := s.ListReminders(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []int64{soon.ID}, ids(got))
}

// Readers run while writers create and complete tasks. Every read must be a
// whole snapshot: counts add up and no row shows up twice.
func testConcurrentReadsAndWrites(t *testing.T, s repo.Store, _ *Clock) {
	const (
		writers   = 4
		perWriter = 10
		readers   = 4
	)
	ctx := context.Background()
	all := filter.CompileScope(model.NotebookScope{All: true})

	var g errgroup.Group
	for w := range writers {
		g.Go(func() error {
			for j := range perWriter {
				task, err := s.Create(ctx, model.Task{
					Title:      fmt.Sprintf("Task %d-%d", w, j),
					Priority:   model.Priority(j % 4),
					NotebookID: model.NoNotebook,
				})
				if err != nil {
					return err
				}
				if j%2 == 0 {
					if _, err := s.SetState(ctx, []int64{task.ID}, model.StateCompleted, nil); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	for range readers {
		g.Go(func() error {
			for range 10 {
				c, err := s.Count(ctx, all)
				if err != nil {
					return err
				}
				if !c.Consistent() {
					return fmt.Errorf("inconsistent counts %+v", c)
				}
				page, err := s.Query(ctx, all, 0, writers*perWriter)
				if err != nil {
					return err
				}
				seen := make(map[int64]bool, len(page))
				for _, d := range page {
					if seen[d.ID] {
						return fmt.Errorf("task %d listed twice", d.ID)
					}
					seen[d.ID] = true
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	c, err := s.Count(ctx, all)
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), c.Total)
	assert.Equal(t, int64(writers*perWriter/2), c.Completed)
}

func testUnicodeSearch(t *testing.T, s repo.Store, _ *Clock) {
	ctx := context.Background()
	var created []model.Task
	for _, task := range []model.Task{
		{Title: "Ärger im Büro"},
		{Title: "kein ärger"},
		{Title: "plain", Description: "ÜBER alles"},
		{Title: "Straße"},
	} {
		task.NotebookID = model.NoNotebook
		c, err := s.Create(ctx, task)
		require.NoError(t, err)
		created = append(created, c)
	}

	tests := []struct {
		query string
		want  []int64
	}{
		{"Ärger", []int64{created[0].ID, created[1].ID}},
		{"ärger", []int64{created[0].ID, created[1].ID}},
		{"BÜRO", []int64{created[0].ID}},
		{"über", []int64{created[2].ID}},
		{"STRASSE", nil},
		{"straße", []int64{created[3].ID}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			spec := model.DefaultFilterSpec()
			spec.Sort.OrderEnabled = false
			spec.SearchQuery = tt.query
			got, err := s.Query(ctx, filter.Compile(spec), 0, 100)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, detailIDs(got))
		})
	}
}

// testCountBefore checks that Query.Before counts exactly the rows listed
// ahead of the anchor, for live and deleted anchors alike.
func testCountBefore(t *testing.T, s repo.Store, c *Clock) {
	ctx := context.Background()
	nb, all := fixture(t, s, c)
	for name, spec := range specs(nb, all[5].CreatedAt, all[15].CreatedAt) {
		q := filter.Compile(spec)
		if q.Unsatisfiable() {
			continue
		}
		listed := q.Apply(all)
		t.Run(name, func(t *testing.T) {
			for _, anchor := range all {
				want := 0
				for _, task := range listed {
					if q.Compare(task, anchor) < 0 {
						want++
					}
				}
				got, err := s.Count(ctx, q.Before(anchor))
				require.NoError(t, err)
				assert.Equal(t, int64(want), got.Total, "anchor %d", anchor.ID)
			}
		})
	}
}

func testCanceledContext(t *testing.T, s repo.Store, _ *Clock) {
	task, err := s.Create(context.Background(), model.Task{Title: "x", NotebookID: model.NoNotebook})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Get(ctx, task.ID)
	assert.True(t, repo.IsCanceled(err), "get: %v", err)
	_, err = s.Update(ctx, task)
	assert.True(t, repo.IsCanceled(err), "update: %v", err)
	_, err = s.SetFavorite(ctx, task.ID, true)
	assert.True(t, repo.IsCanceled(err), "favorite: %v", err)
	_, err = s.ListNotebooks(ctx)
	assert.True(t, repo.IsCanceled(err), "notebooks: %v", err)
	_, err = s.ListPhotos(ctx, task.ID)
	assert.True(t, repo.IsCanceled(err), "photos: %v", err)
	_, err = s.Query(ctx, filter.Compile(model.DefaultFilterSpec()), 0, 10)
	assert.True(t, repo.IsCanceled(err), "query: %v", err)

	got, err := s.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.False(t, got.Favorite)
}
