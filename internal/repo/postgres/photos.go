package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

func scanPhoto(row pgx.Row) (model.Photo, error) {
	var p model.Photo
	if err := row.Scan(&p.ID, &p.TaskID, &p.URI, &p.CreatedAt); err != nil {
		return model.Photo{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (s *Store) AddPhoto(ctx context.Context, p model.Photo) (model.Photo, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now()
	var nb int64
	err := s.withTx(ctx, "add photo", func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT notebook_id FROM tasks WHERE id = $1`, p.TaskID).Scan(&nb); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO photos (id, task_id, uri, created_at) VALUES ($1, $2, $3, $4)`,
			p.ID, p.TaskID, p.URI, p.CreatedAt)
		return err
	})
	if err != nil {
		return model.Photo{}, err
	}
	s.notifier.Publish(repo.Change{Tasks: []int64{p.TaskID}, Notebooks: []int64{nb}})
	return p, nil
}

func (s *Store) ListPhotos(ctx context.Context, taskID int64) ([]model.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, uri, created_at FROM photos WHERE task_id = $1 ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, s.mapError("list photos", err)
	}
	defer rows.Close()

	out := []model.Photo{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, s.mapError("list photos", err)
		}
		out = append(out, p)
	}
	return out, s.mapError("list photos", rows.Err())
}

func (s *Store) DeletePhoto(ctx context.Context, id string) error {
	var taskID, nb int64
	err := s.pool.QueryRow(ctx, `
		DELETE FROM photos p USING tasks t
		WHERE p.id = $1 AND t.id = p.task_id
		RETURNING p.task_id, t.notebook_id`, id).Scan(&taskID, &nb)
	if err != nil {
		return s.mapError("delete photo", err)
	}
	s.notifier.Publish(repo.Change{Tasks: []int64{taskID}, Notebooks: []int64{nb}})
	return nil
}
