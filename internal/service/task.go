package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

var (
	ErrValidation = errors.New("validation error")
)

// MaxBatch bounds the ids accepted by one batch call.
const MaxBatch = 500

type TaskService struct {
	repo   repo.TaskRepository
	photos repo.PhotoRepository
	clock  repo.Clock
}

type Option func(*TaskService)

func WithClock(c repo.Clock) Option {
	return func(s *TaskService) { s.clock = c }
}

func NewTaskService(tasks repo.TaskRepository, photos repo.PhotoRepository, opts ...Option) *TaskService {
	s := &TaskService{repo: tasks, photos: photos, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskService) Create(ctx context.Context, t model.Task) (model.Task, error) {
	if err := s.validate(t); err != nil { // Валидация модели на корректность введенных данных
		return t, err
	}
	t.FinishedAt = s.finishedAt(t.State, nil, t.FinishedAt)
	return s.repo.Create(ctx, t)
}

func (s *TaskService) Get(ctx context.Context, id int64) (model.Task, error) {
	return s.repo.Get(ctx, id)
}

// Update replaces the editable fields. The completion time is kept while a
// task stays completed.
func (s *TaskService) Update(ctx context.Context, t model.Task) (model.Task, error) {
	if err := s.validate(t); err != nil {
		return t, err
	}
	old, err := s.repo.Get(ctx, t.ID)
	if err != nil {
		return t, err
	}
	t.FinishedAt = s.finishedAt(t.State, &old, t.FinishedAt)
	return s.repo.Update(ctx, t)
}

func (s *TaskService) SetFavorite(ctx context.Context, id int64, favorite bool) (model.Task, error) {
	return s.repo.SetFavorite(ctx, id, favorite)
}

// Delete moves one task to the trash.
func (s *TaskService) Delete(ctx context.Context, id int64) error {
	return s.single(ctx, id, true)
}

func (s *TaskService) Restore(ctx context.Context, id int64) error {
	return s.single(ctx, id, false)
}

func (s *TaskService) single(ctx context.Context, id int64, deleted bool) error {
	res, err := s.repo.SetDeleted(ctx, []int64{id}, deleted)
	if err != nil {
		return err
	}
	if len(res.Applied) == 0 {
		return repo.ErrorNotFound
	}
	return nil
}

// Purge removes a task and its photos for good.
func (s *TaskService) Purge(ctx context.Context, id int64) error {
	return s.repo.Purge(ctx, id)
}

func (s *TaskService) DeleteMany(ctx context.Context, ids []int64) (model.BatchResult, error) {
	ids, err := batchIDs(ids)
	if err != nil {
		return model.BatchResult{}, err
	}
	return s.repo.SetDeleted(ctx, ids, true)
}

func (s *TaskService) RestoreMany(ctx context.Context, ids []int64) (model.BatchResult, error) {
	ids, err := batchIDs(ids)
	if err != nil {
		return model.BatchResult{}, err
	}
	return s.repo.SetDeleted(ctx, ids, false)
}

func (s *TaskService) Move(ctx context.Context, ids []int64, notebookID int64) (model.BatchResult, error) {
	ids, err := batchIDs(ids)
	if err != nil {
		return model.BatchResult{}, err
	}
	if err := validNotebookID(notebookID); err != nil {
		return model.BatchResult{}, err
	}
	return s.repo.MoveToNotebook(ctx, ids, notebookID)
}

// Copy duplicates live tasks into notebookID. Deleted and unknown ids are skipped.
func (s *TaskService) Copy(ctx context.Context, ids []int64, notebookID int64) ([]model.Task, error) {
	ids, err := batchIDs(ids)
	if err != nil {
		return nil, err
	}
	if err := validNotebookID(notebookID); err != nil {
		return nil, err
	}
	return s.repo.CopyToNotebook(ctx, ids, notebookID)
}

// SetState moves tasks to state. Completing stamps the finish time, every
// other state clears it.
func (s *TaskService) SetState(ctx context.Context, ids []int64, state model.State) (model.BatchResult, error) {
	ids, err := batchIDs(ids)
	if err != nil {
		return model.BatchResult{}, err
	}
	if !state.Valid() {
		return model.BatchResult{}, fmt.Errorf("%w: unknown state %d", ErrValidation, int(state))
	}
	return s.repo.SetState(ctx, ids, state, s.finishedAt(state, nil, nil))
}

func (s *TaskService) AddPhoto(ctx context.Context, taskID int64, uri string) (model.Photo, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return model.Photo{}, fmt.Errorf("%w: photo uri is required", ErrValidation)
	}
	return s.photos.AddPhoto(ctx, model.Photo{TaskID: taskID, URI: uri})
}

func (s *TaskService) ListPhotos(ctx context.Context, taskID int64) ([]model.Photo, error) {
	if _, err := s.repo.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return s.photos.ListPhotos(ctx, taskID)
}

func (s *TaskService) DeletePhoto(ctx context.Context, id string) error {
	return s.photos.DeletePhoto(ctx, id)
}

func (s *TaskService) finishedAt(state model.State, old *model.Task, given *time.Time) *time.Time {
	if state != model.StateCompleted {
		return nil
	}
	if old != nil && old.State == model.StateCompleted && old.FinishedAt != nil {
		return old.FinishedAt
	}
	if given != nil {
		return given
	}
	now := s.clock()
	return &now
}

func (s *TaskService) validate(t model.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %d", ErrValidation, int(t.Priority))
	}
	if !t.State.Valid() {
		return fmt.Errorf("%w: unknown state %d", ErrValidation, int(t.State))
	}
	if !t.ReminderType.Valid() {
		return fmt.Errorf("%w: unknown reminder type %d", ErrValidation, int(t.ReminderType))
	}
	if t.ReminderType != model.ReminderNone && t.DueDate == nil {
		return fmt.Errorf("%w: reminder requires a due date", ErrValidation)
	}
	if t.ReminderOffset < 0 || t.ReminderOffset > model.MaxReminderOffset {
		return fmt.Errorf("%w: reminder offset out of range", ErrValidation)
	}
	return validNotebookID(t.NotebookID)
}

func validNotebookID(id int64) error {
	if id != model.NoNotebook && id <= 0 {
		return fmt.Errorf("%w: invalid notebook id %d", ErrValidation, id)
	}
	return nil
}

// batchIDs rejects empty or oversized batches and drops duplicates, keeping
// the first occurrence.
func batchIDs(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no ids given", ErrValidation)
	}
	if len(ids) > MaxBatch {
		return nil, fmt.Errorf("%w: at most %d ids per batch", ErrValidation, MaxBatch)
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}
