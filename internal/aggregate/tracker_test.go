package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
)

func TestTrackerSwitchesScope(t *testing.T) {
	f := newFixture(t)
	tr := NewTracker(NewCounter(f.store))
	defer tr.Stop()
	ctx := context.Background()

	tr.Track(ctx, Request{Scope: model.NotebookScope{NotebookID: f.work.ID}})
	assert.Equal(t, int64(2), receive(t, tr.Updates()).Total)

	tr.Track(ctx, Request{Scope: model.NotebookScope{NotebookID: model.NoNotebook}})
	assert.Equal(t, int64(3), receive(t, tr.Updates()).Total)

	// Writes to the previous scope no longer reach the tracker.
	_, err := f.store.Create(ctx, model.Task{Title: "late", NotebookID: f.work.ID})
	require.NoError(t, err)
	assertQuiet(t, tr.Updates())

	_, err = f.store.Create(ctx, model.Task{Title: "here", NotebookID: model.NoNotebook})
	require.NoError(t, err)
	assert.Equal(t, int64(4), receive(t, tr.Updates()).Total)
}

func TestTrackerSameRequestKeepsSubscription(t *testing.T) {
	f := newFixture(t)
	tr := NewTracker(NewCounter(f.store))
	defer tr.Stop()
	ctx := context.Background()

	spec := model.DefaultFilterSpec()
	spec.FavoriteOnly = true
	req := Request{Scope: model.NotebookScope{All: true}, Spec: &spec}
	tr.Track(ctx, req)
	assert.Equal(t, int64(2), receive(t, tr.Updates()).Total)

	same := spec
	tr.Track(ctx, Request{Scope: model.NotebookScope{All: true}, Spec: &same})
	assertQuiet(t, tr.Updates())
}

func TestRequestEqual(t *testing.T) {
	a := model.DefaultFilterSpec()
	b := model.DefaultFilterSpec()
	b.SearchQuery = "x"
	all := model.NotebookScope{All: true}

	assert.True(t, Request{Scope: all}.Equal(Request{Scope: all}))
	assert.True(t, Request{Scope: all, Spec: &a}.Equal(Request{Scope: all, Spec: &a}))
	assert.False(t, Request{Scope: all, Spec: &a}.Equal(Request{Scope: all, Spec: &b}))
	assert.False(t, Request{Scope: all}.Equal(Request{Scope: all, Spec: &a}))
	assert.False(t, Request{Scope: all}.Equal(Request{Scope: model.NotebookScope{NotebookID: 1}}))
}
