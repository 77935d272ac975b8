package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

const notebookColumns = `id, title, description, priority, created_at, updated_at`

func scanNotebook(row scanner) (model.Notebook, error) {
	var (
		n                model.Notebook
		created, updated int64
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Description, &n.Priority, &created, &updated); err != nil {
		return model.Notebook{}, err
	}
	n.CreatedAt = timeOf(created)
	n.UpdatedAt = timeOf(updated)
	return n, nil
}

func (s *Store) CreateNotebook(ctx context.Context, n model.Notebook) (model.Notebook, error) {
	now := s.now()
	n.CreatedAt = now
	n.UpdatedAt = now
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notebooks (title, description, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.Title, n.Description, int(n.Priority), msOf(now), msOf(now))
	if err != nil {
		return model.Notebook{}, repo.WrapIO("create notebook", err)
	}
	if n.ID, err = res.LastInsertId(); err != nil {
		return model.Notebook{}, repo.WrapIO("create notebook", err)
	}
	return n, nil
}

func (s *Store) GetNotebook(ctx context.Context, id int64) (model.Notebook, error) {
	n, err := scanNotebook(s.db.QueryRowContext(ctx, `SELECT `+notebookColumns+` FROM notebooks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Notebook{}, repo.ErrorNotFound
	}
	return n, repo.WrapIO("get notebook", err)
}

func (s *Store) ListNotebooks(ctx context.Context) ([]model.Notebook, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+notebookColumns+` FROM notebooks ORDER BY id`)
	if err != nil {
		return nil, repo.WrapIO("list notebooks", err)
	}
	defer rows.Close()

	out := []model.Notebook{}
	for rows.Next() {
		n, err := scanNotebook(rows)
		if err != nil {
			return nil, repo.WrapIO("list notebooks", err)
		}
		out = append(out, n)
	}
	return out, repo.WrapIO("list notebooks", rows.Err())
}

func (s *Store) UpdateNotebook(ctx context.Context, n model.Notebook) (model.Notebook, error) {
	err := s.withTx(ctx, "update notebook", func(tx *sql.Tx) error {
		var created int64
		err := tx.QueryRowContext(ctx, `SELECT created_at FROM notebooks WHERE id = ?`, n.ID).Scan(&created)
		if errors.Is(err, sql.ErrNoRows) {
			return repo.ErrorNotFound
		}
		if err != nil {
			return err
		}
		n.CreatedAt = timeOf(created)
		n.UpdatedAt = s.now()
		_, err = tx.ExecContext(ctx, `
			UPDATE notebooks SET title = ?, description = ?, priority = ?, updated_at = ?
			WHERE id = ?`,
			n.Title, n.Description, int(n.Priority), msOf(n.UpdatedAt), n.ID)
		return err
	})
	if err != nil {
		return model.Notebook{}, err
	}
	s.notifier.Publish(repo.Change{Notebooks: []int64{n.ID}})
	return n, nil
}

func (s *Store) DeleteNotebook(ctx context.Context, id int64) error {
	change := repo.Change{Notebooks: []int64{id}}
	err := s.withTx(ctx, "delete notebook", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM notebooks WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return repo.ErrorNotFound
		}

		rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE notebook_id = ? AND NOT deleted`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var tid int64
			if err := rows.Scan(&tid); err != nil {
				rows.Close()
				return err
			}
			change.Tasks = append(change.Tasks, tid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE tasks SET deleted = 1, updated_at = ? WHERE notebook_id = ? AND NOT deleted`,
			msOf(s.now()), id)
		return err
	})
	if err != nil {
		return err
	}
	s.notifier.Publish(change)
	return nil
}
