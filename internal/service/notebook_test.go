package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo/memory"
)

func TestNotebookService(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	svc := NewNotebookService(store)

	_, err := svc.Create(ctx, model.Notebook{Title: " "})
	assert.ErrorIs(t, err, ErrValidation)

	n, err := svc.Create(ctx, model.Notebook{Title: "Home", Priority: model.PriorityMedium})
	require.NoError(t, err)

	n.Title = "House"
	updated, err := svc.Update(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, "House", updated.Title)

	_, err = svc.Update(ctx, model.Notebook{ID: n.ID, Title: "x", Priority: 7})
	assert.ErrorIs(t, err, ErrValidation)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	tasks := NewTaskService(store, store)
	task, err := tasks.Create(ctx, model.Task{Title: "sweep", NotebookID: n.ID})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, n.ID))
	_, err = svc.Get(ctx, n.ID)
	assert.ErrorIs(t, err, repo.ErrorNotFound)

	got, err := tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
}
