package repo

import (
	"context"
	"time"

	"github.com/BuzzLyutic/notebook-tasks/internal/filter"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
)

// TaskRepository определяет интерфейс для работы с задачами.
// Каждая запись проставляет UpdatedAt на стороне хранилища.
type TaskRepository interface {
	Create(ctx context.Context, t model.Task) (model.Task, error)
	// Get reads a row directly, deleted rows included.
	Get(ctx context.Context, id int64) (model.Task, error)
	Update(ctx context.Context, t model.Task) (model.Task, error)
	SetFavorite(ctx context.Context, id int64, favorite bool) (model.Task, error)
	Purge(ctx context.Context, id int64) error

	// Batch writes apply every existing id in one transaction and report
	// unknown ids as Missing.
	SetDeleted(ctx context.Context, ids []int64, deleted bool) (model.BatchResult, error)
	MoveToNotebook(ctx context.Context, ids []int64, notebookID int64) (model.BatchResult, error)
	SetState(ctx context.Context, ids []int64, state model.State, finishedAt *time.Time) (model.BatchResult, error)
	CopyToNotebook(ctx context.Context, ids []int64, notebookID int64) ([]model.Task, error)

	// ListReminders returns live, unfinished tasks with a reminder and a due
	// date inside [dueFrom, dueTo].
	ListReminders(ctx context.Context, dueFrom, dueTo time.Time) ([]model.Task, error)
}

// TaskReader executes compiled queries. Query reads one consistent snapshot.
type TaskReader interface {
	Query(ctx context.Context, q filter.Query, offset, limit int) ([]model.TaskDetail, error)
	Count(ctx context.Context, q filter.Query) (model.AggregateCount, error)
}

type NotebookRepository interface {
	CreateNotebook(ctx context.Context, n model.Notebook) (model.Notebook, error)
	GetNotebook(ctx context.Context, id int64) (model.Notebook, error)
	ListNotebooks(ctx context.Context) ([]model.Notebook, error)
	UpdateNotebook(ctx context.Context, n model.Notebook) (model.Notebook, error)
	// DeleteNotebook soft-deletes the notebook's tasks and removes the notebook.
	DeleteNotebook(ctx context.Context, id int64) error
}

type PhotoRepository interface {
	AddPhoto(ctx context.Context, p model.Photo) (model.Photo, error)
	ListPhotos(ctx context.Context, taskID int64) ([]model.Photo, error)
	DeletePhoto(ctx context.Context, id string) error
}

// Store is a complete record store backend.
type Store interface {
	TaskRepository
	TaskReader
	NotebookRepository
	PhotoRepository
	Subscribe(ctx context.Context) <-chan Change
	Close() error
}

// Clock supplies the server-side mutation time.
type Clock func() time.Time

// Stamp normalizes a timestamp to what every store persists.
func Stamp(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

func StampPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := Stamp(*t)
	return &v
}
