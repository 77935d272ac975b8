package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

func scanPhoto(row scanner) (model.Photo, error) {
	var (
		p       model.Photo
		created int64
	)
	if err := row.Scan(&p.ID, &p.TaskID, &p.URI, &created); err != nil {
		return model.Photo{}, err
	}
	p.CreatedAt = timeOf(created)
	return p, nil
}

func (s *Store) AddPhoto(ctx context.Context, p model.Photo) (model.Photo, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now()
	var nb int64
	err := s.withTx(ctx, "add photo", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT notebook_id FROM tasks WHERE id = ?`, p.TaskID).Scan(&nb)
		if errors.Is(err, sql.ErrNoRows) {
			return repo.ErrorNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO photos (id, task_id, uri, created_at) VALUES (?, ?, ?, ?)`,
			p.ID, p.TaskID, p.URI, msOf(p.CreatedAt))
		return err
	})
	if err != nil {
		return model.Photo{}, err
	}
	s.notifier.Publish(repo.Change{Tasks: []int64{p.TaskID}, Notebooks: []int64{nb}})
	return p, nil
}

func (s *Store) ListPhotos(ctx context.Context, taskID int64) ([]model.Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, uri, created_at FROM photos WHERE task_id = ? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, repo.WrapIO("list photos", err)
	}
	defer rows.Close()

	out := []model.Photo{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, repo.WrapIO("list photos", err)
		}
		out = append(out, p)
	}
	return out, repo.WrapIO("list photos", rows.Err())
}

func (s *Store) DeletePhoto(ctx context.Context, id string) error {
	var taskID, nb int64
	err := s.withTx(ctx, "delete photo", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT p.task_id, COALESCE(t.notebook_id, -1)
			FROM photos p LEFT JOIN tasks t ON t.id = p.task_id
			WHERE p.id = ?`, id).Scan(&taskID, &nb)
		if errors.Is(err, sql.ErrNoRows) {
			return repo.ErrorNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return err
	}
	s.notifier.Publish(repo.Change{Tasks: []int64{taskID}, Notebooks: []int64{nb}})
	return nil
}
