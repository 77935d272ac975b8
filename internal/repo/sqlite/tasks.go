package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

const taskColumns = `t.id, t.title, t.description, t.priority, t.state, t.favorite,
	t.created_at, t.updated_at, t.finished_at, t.due_date, t.notebook_id, t.deleted,
	t.reminder_type, t.reminder_offset`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner, extra ...any) (model.Task, error) {
	var (
		t                model.Task
		created, updated int64
		finished, due    sql.NullInt64
	)
	dest := []any{&t.ID, &t.Title, &t.Description, &t.Priority, &t.State, &t.Favorite,
		&created, &updated, &finished, &due, &t.NotebookID, &t.Deleted,
		&t.ReminderType, &t.ReminderOffset}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Task{}, err
	}
	t.CreatedAt = timeOf(created)
	t.UpdatedAt = timeOf(updated)
	t.FinishedAt = timePtr(finished)
	t.DueDate = timePtr(due)
	return t, nil
}

func getTask(ctx context.Context, tx *sql.Tx, id int64) (model.Task, error) {
	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, repo.ErrorNotFound
	}
	return t, err
}

func checkNotebook(ctx context.Context, tx *sql.Tx, id int64) error {
	if id == model.NoNotebook {
		return nil
	}
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM notebooks WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrInvalidReference
	}
	return err
}

func insertTask(ctx context.Context, tx *sql.Tx, t model.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (title, description, priority, state, favorite, created_at, updated_at,
			finished_at, due_date, notebook_id, deleted, reminder_type, reminder_offset)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, int(t.Priority), int(t.State), t.Favorite,
		msOf(t.CreatedAt), msOf(t.UpdatedAt), nullMs(t.FinishedAt), nullMs(t.DueDate),
		t.NotebookID, t.Deleted, int(t.ReminderType), t.ReminderOffset)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) Create(ctx context.Context, t model.Task) (model.Task, error) {
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Deleted = false
	t.DueDate = repo.StampPtr(t.DueDate)
	t.FinishedAt = repo.StampPtr(t.FinishedAt)

	err := s.withTx(ctx, "create task", func(tx *sql.Tx) error {
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
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, repo.ErrorNotFound
	}
	return t, repo.WrapIO("get task", err)
}

func (s *Store) Update(ctx context.Context, t model.Task) (model.Task, error) {
	var oldNotebook int64
	err := s.withTx(ctx, "update task", func(tx *sql.Tx) error {
		old, err := getTask(ctx, tx, t.ID)
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
		_, err = tx.ExecContext(ctx, `
			UPDATE tasks SET title = ?, description = ?, priority = ?, state = ?, favorite = ?,
				updated_at = ?, finished_at = ?, due_date = ?, notebook_id = ?,
				reminder_type = ?, reminder_offset = ?
			WHERE id = ?`,
			t.Title, t.Description, int(t.Priority), int(t.State), t.Favorite,
			msOf(t.UpdatedAt), nullMs(t.FinishedAt), nullMs(t.DueDate), t.NotebookID,
			int(t.ReminderType), t.ReminderOffset, t.ID)
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	s.notifier.Publish(repo.Change{Tasks: []int64{t.ID}, Notebooks: pair(oldNotebook, t.NotebookID)})
	return t, nil
}

func (s *Store) SetFavorite(ctx context.Context, id int64, favorite bool) (model.Task, error) {
	var t model.Task
	err := s.withTx(ctx, "set favorite", func(tx *sql.Tx) error {
		var err error
		if t, err = getTask(ctx, tx, id); err != nil {
			return err
		}
		t.Favorite = favorite
		t.UpdatedAt = s.now()
		_, err = tx.ExecContext(ctx, `UPDATE tasks SET favorite = ?, updated_at = ? WHERE id = ?`,
			favorite, msOf(t.UpdatedAt), id)
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	s.notifier.Publish(repo.Change{Tasks: []int64{id}, Notebooks: []int64{t.NotebookID}})
	return t, nil
}

func (s *Store) Purge(ctx context.Context, id int64) error {
	var t model.Task
	err := s.withTx(ctx, "purge task", func(tx *sql.Tx) error {
		var err error
		if t, err = getTask(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE task_id = ?`, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return err
	}
	s.notifier.Publish(repo.Change{Tasks: []int64{id}, Notebooks: []int64{t.NotebookID}})
	return nil
}

// batch runs stmt for every existing id. stmt takes the updated_at stamp
// followed by args and finally the id.
func (s *Store) batch(ctx context.Context, op string, ids []int64, newNotebook *int64, stmt string, args ...any) (model.BatchResult, error) {
	var (
		res    model.BatchResult
		change repo.Change
	)
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		if newNotebook != nil {
			if err := checkNotebook(ctx, tx, *newNotebook); err != nil {
				return err
			}
			change.Notebooks = append(change.Notebooks, *newNotebook)
		}
		now := msOf(s.now())
		for _, id := range ids {
			var nb int64
			err := tx.QueryRowContext(ctx, `SELECT notebook_id FROM tasks WHERE id = ?`, id).Scan(&nb)
			if errors.Is(err, sql.ErrNoRows) {
				res.Missing = append(res.Missing, id)
				continue
			}
			if err != nil {
				return err
			}
			full := append(append([]any{now}, args...), id)
			if _, err := tx.ExecContext(ctx, stmt, full...); err != nil {
				return err
			}
			if !slices.Contains(change.Notebooks, nb) {
				change.Notebooks = append(change.Notebooks, nb)
			}
			change.Tasks = append(change.Tasks, id)
			res.Applied = append(res.Applied, id)
		}
		return nil
	})
	if err != nil {
		return model.BatchResult{}, err
	}
	s.notifier.Publish(change)
	return res, nil
}

func (s *Store) SetDeleted(ctx context.Context, ids []int64, deleted bool) (model.BatchResult, error) {
	return s.batch(ctx, "set deleted", ids, nil,
		`UPDATE tasks SET updated_at = ?, deleted = ? WHERE id = ?`, deleted)
}

func (s *Store) MoveToNotebook(ctx context.Context, ids []int64, notebookID int64) (model.BatchResult, error) {
	return s.batch(ctx, "move tasks", ids, &notebookID,
		`UPDATE tasks SET updated_at = ?, notebook_id = ? WHERE id = ?`, notebookID)
}

func (s *Store) SetState(ctx context.Context, ids []int64, state model.State, finishedAt *time.Time) (model.BatchResult, error) {
	return s.batch(ctx, "set state", ids, nil,
		`UPDATE tasks SET updated_at = ?, state = ?, finished_at = ? WHERE id = ?`,
		int(state), nullMs(repo.StampPtr(finishedAt)))
}

func (s *Store) CopyToNotebook(ctx context.Context, ids []int64, notebookID int64) ([]model.Task, error) {
	var copies []model.Task
	change := repo.Change{Notebooks: []int64{notebookID}}
	err := s.withTx(ctx, "copy tasks", func(tx *sql.Tx) error {
		if err := checkNotebook(ctx, tx, notebookID); err != nil {
			return err
		}
		now := s.now()
		for _, id := range ids {
			src, err := getTask(ctx, tx, id)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		WHERE NOT t.deleted AND t.state NOT IN (?, ?) AND t.reminder_type <> ?
			AND t.due_date IS NOT NULL AND t.due_date >= ? AND t.due_date <= ?
		ORDER BY t.due_date, t.id`,
		int(model.StateCompleted), int(model.StateCancelled), int(model.ReminderNone),
		msOf(dueFrom), msOf(dueTo))
	if err != nil {
		return nil, repo.WrapIO("list reminders", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, repo.WrapIO("list reminders", err)
		}
		out = append(out, t)
	}
	return out, repo.WrapIO("list reminders", rows.Err())
}

func pair(a, b int64) []int64 {
	if a == b {
		return []int64{a}
	}
	return []int64{a, b}
}
