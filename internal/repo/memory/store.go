// Package memory keeps records in process memory. Used for tests and for
// running without a database.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/notebook-tasks/internal/filter"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

type Store struct {
	mtx       sync.RWMutex
	tasks     map[int64]model.Task
	notebooks map[int64]model.Notebook
	photos    map[string]model.Photo
	nextTask  int64
	nextNote  int64

	clock    repo.Clock
	notifier *repo.Notifier
}

type Option func(*Store)

func WithClock(c repo.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func New(opts ...Option) *Store {
	s := &Store{
		tasks:     make(map[int64]model.Task),
		notebooks: make(map[int64]model.Notebook),
		photos:    make(map[string]model.Photo),
		clock:     time.Now,
		notifier:  repo.NewNotifier(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repo.Store = (*Store)(nil)

func (s *Store) now() time.Time { return repo.Stamp(s.clock()) }

func (s *Store) Subscribe(ctx context.Context) <-chan repo.Change {
	return s.notifier.Subscribe(ctx)
}

func (s *Store) Close() error {
	s.notifier.Close()
	return nil
}

// checkNotebook must be called with the lock held.
func (s *Store) checkNotebook(id int64) error {
	if id == model.NoNotebook {
		return nil
	}
	if _, ok := s.notebooks[id]; !ok {
		return repo.ErrInvalidReference
	}
	return nil
}

func (s *Store) Create(ctx context.Context, t model.Task) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	s.mtx.Lock()
	if err := s.checkNotebook(t.NotebookID); err != nil {
		s.mtx.Unlock()
		return model.Task{}, err
	}
	s.nextTask++
	now := s.now()
	t.ID = s.nextTask
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Deleted = false
	t.DueDate = repo.StampPtr(t.DueDate)
	t.FinishedAt = repo.StampPtr(t.FinishedAt)
	s.tasks[t.ID] = t
	s.mtx.Unlock()

	s.notifier.Publish(repo.Change{Tasks: []int64{t.ID}, Notebooks: []int64{t.NotebookID}})
	return t, nil
}

func (s *Store) Get(ctx context.Context, id int64) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, repo.ErrorNotFound
	}
	return t, nil
}

func (s *Store) Update(ctx context.Context, t model.Task) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	s.mtx.Lock()
	old, ok := s.tasks[t.ID]
	if !ok {
		s.mtx.Unlock()
		return model.Task{}, repo.ErrorNotFound
	}
	if err := s.checkNotebook(t.NotebookID); err != nil {
		s.mtx.Unlock()
		return model.Task{}, err
	}
	t.CreatedAt = old.CreatedAt
	t.Deleted = old.Deleted
	t.UpdatedAt = s.now()
	t.DueDate = repo.StampPtr(t.DueDate)
	t.FinishedAt = repo.StampPtr(t.FinishedAt)
	s.tasks[t.ID] = t
	s.mtx.Unlock()

	s.notifier.Publish(repo.Change{Tasks: []int64{t.ID}, Notebooks: union(old.NotebookID, t.NotebookID)})
	return t, nil
}

func (s *Store) SetFavorite(ctx context.Context, id int64, favorite bool) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	s.mtx.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mtx.Unlock()
		return model.Task{}, repo.ErrorNotFound
	}
	t.Favorite = favorite
	t.UpdatedAt = s.now()
	s.tasks[id] = t
	s.mtx.Unlock()

	s.notifier.Publish(repo.Change{Tasks: []int64{id}, Notebooks: []int64{t.NotebookID}})
	return t, nil
}

func (s *Store) Purge(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mtx.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mtx.Unlock()
		return repo.ErrorNotFound
	}
	delete(s.tasks, id)
	for pid, p := range s.photos {
		if p.TaskID == id {
			delete(s.photos, pid)
		}
	}
	s.mtx.Unlock()

	s.notifier.Publish(repo.Change{Tasks: []int64{id}, Notebooks: []int64{t.NotebookID}})
	return nil
}

// batch applies fn to every existing id under one lock.
func (s *Store) batch(ids []int64, fn func(t *model.Task)) (model.BatchResult, repo.Change) {
	var res model.BatchResult
	var change repo.Change
	now := s.now()
	for _, id := range ids {
		t, ok := s.tasks[id]
		if !ok {
			res.Missing = append(res.Missing, id)
			continue
		}
		change.Notebooks = appendUnique(change.Notebooks, t.NotebookID)
		fn(&t)
		t.UpdatedAt = now
		s.tasks[id] = t
		change.Notebooks = appendUnique(change.Notebooks, t.NotebookID)
		change.Tasks = append(change.Tasks, id)
		res.Applied = append(res.Applied, id)
	}
	return res, change
}

func (s *Store) SetDeleted(ctx context.Context, ids []int64, deleted bool) (model.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return model.BatchResult{}, err
	}
	s.mtx.Lock()
	res, change := s.batch(ids, func(t *model.Task) { t.Deleted = deleted })
	s.mtx.Unlock()
	s.notifier.Publish(change)
	return res, nil
}

func (s *Store) MoveToNotebook(ctx context.Context, ids []int64, notebookID int64) (model.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return model.BatchResult{}, err
	}
	s.mtx.Lock()
	if err := s.checkNotebook(notebookID); err != nil {
		s.mtx.Unlock()
		return model.BatchResult{}, err
	}
	res, change := s.batch(ids, func(t *model.Task) { t.NotebookID = notebookID })
	s.mtx.Unlock()
	s.notifier.Publish(change)
	return res, nil
}

func (s *Store) SetState(ctx context.Context, ids []int64, state model.State, finishedAt *time.Time) (model.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return model.BatchResult{}, err
	}
	finished := repo.StampPtr(finishedAt)
	s.mtx.Lock()
	res, change := s.batch(ids, func(t *model.Task) {
		t.State = state
		t.FinishedAt = finished
	})
	s.mtx.Unlock()
	s.notifier.Publish(change)
	return res, nil
}

func (s *Store) CopyToNotebook(ctx context.Context, ids []int64, notebookID int64) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mtx.Lock()
	if err := s.checkNotebook(notebookID); err != nil {
		s.mtx.Unlock()
		return nil, err
	}
	now := s.now()
	var copies []model.Task
	change := repo.Change{Notebooks: []int64{notebookID}}
	for _, id := range ids {
		src, ok := s.tasks[id]
		if !ok || src.Deleted {
			continue
		}
		s.nextTask++
		c := src
		c.ID = s.nextTask
		c.NotebookID = notebookID
		c.CreatedAt = now
		c.UpdatedAt = now
		s.tasks[c.ID] = c
		copies = append(copies, c)
		change.Tasks = append(change.Tasks, c.ID)
	}
	s.mtx.Unlock()
	s.notifier.Publish(change)
	return copies, nil
}

func (s *Store) ListReminders(ctx context.Context, dueFrom, dueTo time.Time) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	var out []model.Task
	for _, t := range s.tasks {
		if t.Deleted || t.State.Finished() || t.ReminderType == model.ReminderNone || t.DueDate == nil {
			continue
		}
		if t.DueDate.Before(dueFrom) || t.DueDate.After(dueTo) {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b model.Task) int { return a.DueDate.Compare(*b.DueDate) })
	return out, nil
}

func (s *Store) Query(ctx context.Context, q filter.Query, offset, limit int) ([]model.TaskDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	all := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		all = append(all, t)
	}
	rows := q.Apply(all)
	if offset >= len(rows) {
		return []model.TaskDetail{}, nil
	}
	rows = rows[offset:min(offset+limit, len(rows))]

	out := make([]model.TaskDetail, 0, len(rows))
	for _, t := range rows {
		d := model.TaskDetail{Task: t, Photos: s.photosOf(t.ID)}
		if n, ok := s.notebooks[t.NotebookID]; ok {
			d.Notebook = &n
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, q filter.Query) (model.AggregateCount, error) {
	if err := ctx.Err(); err != nil {
		return model.AggregateCount{}, err
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	var c model.AggregateCount
	for _, t := range s.tasks {
		if q.Match(t) {
			c.Add(t)
		}
	}
	return c, nil
}

func (s *Store) CreateNotebook(ctx context.Context, n model.Notebook) (model.Notebook, error) {
	if err := ctx.Err(); err != nil {
		return model.Notebook{}, err
	}
	s.mtx.Lock()
	s.nextNote++
	now := s.now()
	n.ID = s.nextNote
	n.CreatedAt = now
	n.UpdatedAt = now
	s.notebooks[n.ID] = n
	s.mtx.Unlock()
	return n, nil
}

func (s *Store) GetNotebook(ctx context.Context, id int64) (model.Notebook, error) {
	if err := ctx.Err(); err != nil {
		return model.Notebook{}, err
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	n, ok := s.notebooks[id]
	if !ok {
		return model.Notebook{}, repo.ErrorNotFound
	}
	return n, nil
}

func (s *Store) ListNotebooks(ctx context.Context) ([]model.Notebook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	out := make([]model.Notebook, 0, len(s.notebooks))
	for _, n := range s.notebooks {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b model.Notebook) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) UpdateNotebook(ctx context.Context, n model.Notebook) (model.Notebook, error) {
	if err := ctx.Err(); err != nil {
		return model.Notebook{}, err
	}
	s.mtx.Lock()
	old, ok := s.notebooks[n.ID]
	if !ok {
		s.mtx.Unlock()
		return model.Notebook{}, repo.ErrorNotFound
	}
	n.CreatedAt = old.CreatedAt
	n.UpdatedAt = s.now()
	s.notebooks[n.ID] = n
	s.mtx.Unlock()

	// Joined notebook fields of listed tasks changed.
	s.notifier.Publish(repo.Change{Notebooks: []int64{n.ID}})
	return n, nil
}

func (s *Store) DeleteNotebook(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mtx.Lock()
	if _, ok := s.notebooks[id]; !ok {
		s.mtx.Unlock()
		return repo.ErrorNotFound
	}
	var owned []int64
	for tid, t := range s.tasks {
		if t.NotebookID == id && !t.Deleted {
			owned = append(owned, tid)
		}
	}
	_, change := s.batch(owned, func(t *model.Task) { t.Deleted = true })
	delete(s.notebooks, id)
	s.mtx.Unlock()

	change.Notebooks = appendUnique(change.Notebooks, id)
	s.notifier.Publish(change)
	return nil
}

func (s *Store) AddPhoto(ctx context.Context, p model.Photo) (model.Photo, error) {
	if err := ctx.Err(); err != nil {
		return model.Photo{}, err
	}
	s.mtx.Lock()
	t, ok := s.tasks[p.TaskID]
	if !ok {
		s.mtx.Unlock()
		return model.Photo{}, repo.ErrorNotFound
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now()
	s.photos[p.ID] = p
	s.mtx.Unlock()

	s.notifier.Publish(repo.Change{Tasks: []int64{p.TaskID}, Notebooks: []int64{t.NotebookID}})
	return p, nil
}

func (s *Store) ListPhotos(ctx context.Context, taskID int64) ([]model.Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.photosOf(taskID), nil
}

func (s *Store) DeletePhoto(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mtx.Lock()
	p, ok := s.photos[id]
	if !ok {
		s.mtx.Unlock()
		return repo.ErrorNotFound
	}
	delete(s.photos, id)
	nb := model.NoNotebook
	if t, ok := s.tasks[p.TaskID]; ok {
		nb = t.NotebookID
	}
	s.mtx.Unlock()

	s.notifier.Publish(repo.Change{Tasks: []int64{p.TaskID}, Notebooks: []int64{nb}})
	return nil
}

// photosOf must be called with the lock held.
func (s *Store) photosOf(taskID int64) []model.Photo {
	out := []model.Photo{}
	for _, p := range s.photos {
		if p.TaskID == taskID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b model.Photo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func appendUnique(s []int64, v int64) []int64 {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}

func union(a, b int64) []int64 {
	if a == b {
		return []int64{a}
	}
	return []int64{a, b}
}
