package prefs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
)

type failingStore struct{ MemoryStore }

func (*failingStore) Set(Values) error { return errors.New("read-only file system") }

func TestOpenDefaults(t *testing.T) {
	s, err := Open(NewMemoryStore())
	require.NoError(t, err)

	spec := s.Spec()
	assert.Equal(t, model.PriorityOrderNone, spec.Sort.PriorityOrder)
	assert.Equal(t, model.SortUpdatedDesc, spec.Sort.Condition)
	assert.True(t, spec.Sort.OrderEnabled)
	assert.Equal(t, model.AllStates, spec.States)
	assert.Equal(t, model.AllPriorities, spec.Priorities)
	assert.False(t, spec.FavoriteOnly)
	assert.False(t, spec.SearchRangeAll)
	assert.False(t, spec.DateEnabled)
	assert.Equal(t, model.NoNotebook, spec.NotebookID)
	assert.True(t, spec.Equal(model.DefaultFilterSpec()))
}

func TestDecodeUnknownEnumFallsBack(t *testing.T) {
	spec := Decode(Values{keyPriorityOrder: "sideways", keySortCondition: "random", keyFavoriteOnly: true})
	assert.Equal(t, model.PriorityOrderNone, spec.Sort.PriorityOrder)
	assert.Equal(t, model.SortUpdatedDesc, spec.Sort.Condition)
	assert.True(t, spec.FavoriteOnly)
}

func TestSettersPersistAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	fs, err := OpenFile(path)
	require.NoError(t, err)
	s, err := Open(fs)
	require.NoError(t, err)

	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 20, 23, 59, 59, 0, time.UTC)

	_, err = s.SetPriorityOrder(model.PriorityOrderLowFirst)
	require.NoError(t, err)
	_, err = s.SetSortCondition(model.SortCreatedAsc)
	require.NoError(t, err)
	_, err = s.ToggleOrderEnabled()
	require.NoError(t, err)
	_, err = s.ToggleDateEnabled()
	require.NoError(t, err)
	_, err = s.ToggleFavorite()
	require.NoError(t, err)
	_, err = s.SelectNotebook(4)
	require.NoError(t, err)
	_, err = s.ToggleState(model.StateCompleted)
	require.NoError(t, err)
	_, err = s.TogglePriority(model.PriorityNone)
	require.NoError(t, err)
	_, err = s.SetDateRange(start, end)
	require.NoError(t, err)
	_, err = s.SetSearchQuery("milk")
	require.NoError(t, err)
	want := s.Spec()

	fs2, err := OpenFile(path)
	require.NoError(t, err)
	restored, err := Open(fs2)
	require.NoError(t, err)
	got := restored.Spec()

	assert.Equal(t, "", got.SearchQuery)
	want.SearchQuery = ""
	assert.True(t, want.Equal(got), "want %+v, got %+v", want, got)
	assert.False(t, got.States.Has(model.StateCompleted))
	assert.True(t, got.States.Has(model.StateActive))
	assert.False(t, got.Priorities.Has(model.PriorityNone))
	assert.False(t, got.Sort.OrderEnabled)
	assert.Equal(t, start, got.DateRangeStart)
}

func TestSelectNotebookLeavesSearchAll(t *testing.T) {
	s, err := Open(NewMemoryStore())
	require.NoError(t, err)

	spec, err := s.SetSearchRangeAll(true)
	require.NoError(t, err)
	assert.True(t, spec.SearchRangeAll)

	spec, err = s.SelectNotebook(2)
	require.NoError(t, err)
	assert.False(t, spec.SearchRangeAll)
	assert.Equal(t, int64(2), spec.NotebookID)
}

func TestToggleAllStatesOff(t *testing.T) {
	s, err := Open(NewMemoryStore())
	require.NoError(t, err)

	for _, st := range model.States {
		_, err := s.ToggleState(st)
		require.NoError(t, err)
	}
	assert.True(t, s.Spec().States.Empty())
}

func TestFailedPersistKeepsState(t *testing.T) {
	s, err := Open(&failingStore{MemoryStore: MemoryStore{values: Values{}}})
	require.NoError(t, err)

	_, err = s.ToggleFavorite()
	require.Error(t, err)
	assert.False(t, s.Spec().FavoriteOnly)

	// Session-only values never touch the store.
	spec, err := s.SetSearchQuery("x")
	require.NoError(t, err)
	assert.Equal(t, "x", spec.SearchQuery)
}

func TestSubscribeLatestWins(t *testing.T) {
	s, err := Open(NewMemoryStore())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	first := <-ch
	assert.True(t, first.Equal(model.DefaultFilterSpec()))

	_, err = s.ToggleFavorite()
	require.NoError(t, err)
	_, err = s.SetPriorityOrder(model.PriorityOrderHighFirst)
	require.NoError(t, err)

	latest := <-ch
	assert.True(t, latest.FavoriteOnly)
	assert.Equal(t, model.PriorityOrderHighFirst, latest.Sort.PriorityOrder)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}
