package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

const taskColumns = `t.id, t.title, t.description, t.priority, t.state, t.favorite,
	t.created_at, t.updated_at, t.finished_at, t.due_date, t.notebook_id, t.deleted,
	t.reminder_type, t.reminder_offset`

func scanTask(row pgx.Row, extra ...any) (model.Task, error) {
	var t model.Task
	dest := []any{&t.ID, &t.Title, &t.Description, &t.Priority, &t.State, &t.Favorite,
		&t.CreatedAt, &t.UpdatedAt, &t.FinishedAt, &t.DueDate, &t.NotebookID, &t.Deleted,
		&t.ReminderType, &t.ReminderOffset}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Task{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.FinishedAt = utc(t.FinishedAt)
	t.DueDate = utc(t.DueDate)
	return t, nil
}

func getTask(ctx context.Context, q pgx.Tx, id int64, lock bool) (model.Task, error) {
	stmt := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = $1`
	if lock {
		stmt += ` FOR UPDATE`
	}
	t, err := scanTask(q.QueryRow(ctx, stmt, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Task{}, repo.ErrorNotFound
	}
	return t, err
}

func checkNotebook(ctx context.Context, tx pgx.Tx, id int64) error {
	if id == model.NoNotebook {
		return nil
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notebooks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repo.ErrInvalidReference
	}
	return nil
}

func insertTask(ctx context.Context, tx pgx.Tx, t model.Task) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO tasks (title, description, priority, state, favorite, created_at, updated_at,
			finished_at, due_date, notebook_id, deleted, reminder_type, reminder_offset)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		t.Title, t.Description, int(t.Priority), int(t.State), t.Favorite,
		t.CreatedAt, t.UpdatedAt, t.FinishedAt, t.DueDate,
		t.NotebookID, t.Deleted, int(t.ReminderType), t.ReminderOffset).Scan(&id)
	return id, err
}

func (s *Store) Create(ctx context.Context, t model.Task) (model.Task, error) {
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Deleted = false
	t.DueDate = repo.StampPtr(t.DueDate)
	t.FinishedAt = repo.StampPtr(t.FinishedAt)

	err := s.withTx(ctx, "create task", func(tx pgx.Tx) error {
		if err := checkNotebook(ctx, tx, t.NotebookID); err != nil {
			return err
		}
		id, err := insertTask(ctx, tx, t)
		t.ID = id
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	s.notifier.Publish(repo.Change{Tasks: []int64{t.ID}, Notebooks: []int64{t.NotebookID}})
	return t, nil
}

func (s *Store) Get(ctx context.Context, id int64) (model.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1`, id))
	if err != nil {
		return model.Task{}, s.mapError("get task", err)
	}
	return t, nil
}

func (s *Store) Update(ctx context.Context, t model.Task) (model.Task, error) {
	var oldNotebook int64
	err := s.withTx(ctx, "update task", func(tx pgx.Tx) error {
		old, err := getTask(ctx, tx, t.ID, true)
		if err != nil {
			return err
		}
		if err := checkNotebook(ctx, tx, t.NotebookID); err != nil {
			return err
		}
		oldNotebook = old.NotebookID
		t.CreatedAt = old.CreatedAt
		t.Deleted = old.Deleted
		t.UpdatedAt = s.now()
		t.DueDate = repo.StampPtr(t.DueDate)
		t.FinishedAt = repo.StampPtr(t.FinishedAt)
		_, err = tx.Exec(ctx, `
			UPDATE tasks SET title = $2, description = $3, priority = $4, state = $5, favorite = $6,
				updated_at = $7, finished_at = $8, due_date = $9, notebook_id = $10,
				reminder_type = $11, reminder_offset = $12
			WHERE id = $1`,
			t.ID, t.Title, t.Description, int(t.Priority), int(t.State), t.Favorite,
			t.UpdatedAt, t.FinishedAt, t.DueDate, t.NotebookID,
			int(t.ReminderType), t.ReminderOffset)
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	s.notifier.Publish(repo.Change{Tasks: []int64{t.ID}, Notebooks: pair(oldNotebook, t.NotebookID)})
	return t, nil
}

func (s *Store) SetFavorite(ctx context.Context, id int64, favorite bool) (model.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `
		UPDATE tasks t SET favorite = $2, updated_at = $3 WHERE t.id = $1
		RETURNING `+taskColumns, id, favorite, s.now()))
	if err != nil {
		return model.Task{}, s.mapError("set favorite", err)
	}
	s.notifier.Publish(repo.Change{Tasks: []int64{id}, Notebooks: []int64{t.NotebookID}})
	return t, nil
}

func (s *Store) Purge(ctx context.Context, id int64) error {
	var nb int64
	err := s.pool.QueryRow(ctx, `DELETE FROM tasks WHERE id = $1 RETURNING notebook_id`, id).Scan(&nb)
	if err != nil {
		return s.mapError("purge task", err)
	}
	s.notifier.Publish(repo.Change{Tasks: []int64{id}, Notebooks: []int64{nb}})
	return nil
}

// batch locks the existing ids, then runs stmt once over all of them.
// stmt gets the id array as $1 and the updated_at stamp as $2.
func (s *Store) batch(ctx context.Context, op string, ids []int64, newNotebook *int64, stmt string, args ...any) (model.BatchResult, error) {
	var (
		res    model.BatchResult
		change repo.Change
	)
	err := s.withTx(ctx, op, func(tx pgx.Tx) error {
		if newNotebook != nil {
			if err := checkNotebook(ctx, tx, *newNotebook); err != nil {
				return err
			}
			change.Notebooks = append(change.Notebooks, *newNotebook)
		}
		rows, err := tx.Query(ctx, `SELECT id, notebook_id FROM tasks WHERE id = ANY($1) FOR UPDATE`, ids)
		if err != nil {
			return err
		}
		found := make(map[int64]int64, len(ids))
		for rows.Next() {
			var id, nb int64
			if err := rows.Scan(&id, &nb); err != nil {
				rows.Close()
				return err
			}
			found[id] = nb
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			nb, ok := found[id]
			if !ok {
				res.Missing = append(res.Missing, id)
				continue
			}
			res.Applied = append(res.Applied, id)
			change.Tasks = append(change.Tasks, id)
			change.Notebooks = appendUnique(change.Notebooks, nb)
		}
		if len(res.Applied) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, stmt, append([]any{res.Applied, s.now()}, args...)...)
		return err
	})
	if err != nil {
		return model.BatchResult{}, err
	}
	s.notifier.Publish(change)
	return res, nil
}

func (s *Store) SetDeleted(ctx context.Context, ids []int64, deleted bool) (model.BatchResult, error) {
	return s.batch(ctx, "set deleted", ids, nil,
		`UPDATE tasks SET updated_at = $2, deleted = $3 WHERE id = ANY($1)`, deleted)
}

func (s *Store) MoveToNotebook(ctx context.Context, ids []int64, notebookID int64) (model.BatchResult, error) {
	return s.batch(ctx, "move tasks", ids, &notebookID,
		`UPDATE tasks SET updated_at = $2, notebook_id = $3 WHERE id = ANY($1)`, notebookID)
}

func (s *Store) SetState(ctx context.Context, ids []int64, state model.State, finishedAt *time.Time) (model.BatchResult, error) {
	return s.batch(ctx, "set state", ids, nil,
		`UPDATE tasks SET updated_at = $2, state = $3, finished_at = $4 WHERE id = ANY($1)`,
		int(state), repo.StampPtr(finishedAt))
}

func (s *Store) CopyToNotebook(ctx context.Context, ids []int64, notebookID int64) ([]model.Task, error) {
	var copies []model.Task
	change := repo.Change{Notebooks: []int64{notebookID}}
	err := s.withTx(ctx, "copy tasks", func(tx pgx.Tx) error {
		if err := checkNotebook(ctx, tx, notebookID); err != nil {
			return err
		}
		now := s.now()
		for _, id := range ids {
			src, err := getTask(ctx, tx, id, false)
			if errors.Is(err, repo.ErrorNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if src.Deleted {
				continue
			}
			c := src
			c.NotebookID = notebookID
			c.CreatedAt = now
			c.UpdatedAt = now
			if c.ID, err = insertTask(ctx, tx, c); err != nil {
				return err
			}
			copies = append(copies, c)
			change.Tasks = append(change.Tasks, c.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(change)
	return copies, nil
}

func (s *Store) ListReminders(ctx context.Context, dueFrom, dueTo time.Time) ([]model.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		WHERE NOT t.deleted AND t.state NOT IN ($1, $2) AND t.reminder_type <> $3
			AND t.due_date IS NOT NULL AND t.due_date BETWEEN $4 AND $5
		ORDER BY t.due_date, t.id`,
		int(model.StateCompleted), int(model.StateCancelled), int(model.ReminderNone),
		dueFrom.UTC(), dueTo.UTC())
	if err != nil {
		return nil, s.mapError("list reminders", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, s.mapError("list reminders", err)
		}
		out = append(out, t)
	}
	return out, s.mapError("list reminders", rows.Err())
}

func pair(a, b int64) []int64 {
	if a == b {
		return []int64{a}
	}
	return []int64{a, b}
}

func appendUnique(s []int64, v int64) []int64 {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
