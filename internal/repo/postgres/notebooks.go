package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

const notebookColumns = `id, title, description, priority, created_at, updated_at`

func scanNotebook(row pgx.Row) (model.Notebook, error) {
	var n model.Notebook
	if err := row.Scan(&n.ID, &n.Title, &n.Description, &n.Priority, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return model.Notebook{}, err
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return n, nil
}

func (s *Store) CreateNotebook(ctx context.Context, n model.Notebook) (model.Notebook, error) {
	now := s.now()
	n, err := scanNotebook(s.pool.QueryRow(ctx, `
		INSERT INTO notebooks (title, description, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING `+notebookColumns,
		n.Title, n.Description, int(n.Priority), now))
	return n, s.mapError("create notebook", err)
}

func (s *Store) GetNotebook(ctx context.Context, id int64) (model.Notebook, error) {
	n, err := scanNotebook(s.pool.QueryRow(ctx, `SELECT `+notebookColumns+` FROM notebooks WHERE id = $1`, id))
	return n, s.mapError("get notebook", err)
}

func (s *Store) ListNotebooks(ctx context.Context) ([]model.Notebook, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+notebookColumns+` FROM notebooks ORDER BY id`)
	if err != nil {
		return nil, s.mapError("list notebooks", err)
	}
	defer rows.Close()

	out := []model.Notebook{}
	for rows.Next() {
		n, err := scanNotebook(rows)
		if err != nil {
			return nil, s.mapError("list notebooks", err)
		}
		out = append(out, n)
	}
	return out, s.mapError("list notebooks", rows.Err())
}

func (s *Store) UpdateNotebook(ctx context.Context, n model.Notebook) (model.Notebook, error) {
	n, err := scanNotebook(s.pool.QueryRow(ctx, `
		UPDATE notebooks SET title = $2, description = $3, priority = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+notebookColumns,
		n.ID, n.Title, n.Description, int(n.Priority), s.now()))
	if err != nil {
		return model.Notebook{}, s.mapError("update notebook", err)
	}
	s.notifier.Publish(repo.Change{Notebooks: []int64{n.ID}})
	return n, nil
}

func (s *Store) DeleteNotebook(ctx context.Context, id int64) error {
	change := repo.Change{Notebooks: []int64{id}}
	err := s.withTx(ctx, "delete notebook", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM notebooks WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repo.ErrorNotFound
		}
		rows, err := tx.Query(ctx, `
			UPDATE tasks SET deleted = TRUE, updated_at = $2
			WHERE notebook_id = $1 AND NOT deleted
			RETURNING id`, id, s.now())
		if err != nil {
			return err
		}
		change.Tasks, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		return err
	})
	if err != nil {
		return err
	}
	s.notifier.Publish(change)
	return nil
}
