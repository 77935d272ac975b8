package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/filter"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
)

const slowQuery = 200 * time.Millisecond

// Query reads the window and its photos from one snapshot.
func (s *Store) Query(ctx context.Context, q filter.Query, offset, limit int) ([]model.TaskDetail, error) {
	if q.Unsatisfiable() {
		return []model.TaskDetail{}, nil
	}
	start := time.Now()
	where, args := q.Where(filter.Postgres)
	stmt := fmt.Sprintf(`
		SELECT %s, n.id, n.title, n.description, n.priority, n.created_at, n.updated_at
		FROM tasks t LEFT JOIN notebooks n ON n.id = t.notebook_id
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`, taskColumns, where, q.OrderBy(), len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	out := []model.TaskDetail{}
	err := s.withSnapshot(ctx, "query tasks", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, stmt, args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var (
				nbID                 *int64
				nbTitle, nbDesc      *string
				nbPriority           *int
				nbCreated, nbUpdated *time.Time
			)
			t, err := scanTask(rows, &nbID, &nbTitle, &nbDesc, &nbPriority, &nbCreated, &nbUpdated)
			if err != nil {
				rows.Close()
				return err
			}
			d := model.TaskDetail{Task: t, Photos: []model.Photo{}}
			if nbID != nil {
				d.Notebook = &model.Notebook{
					ID:          *nbID,
					Title:       *nbTitle,
					Description: *nbDesc,
					Priority:    model.Priority(*nbPriority),
					CreatedAt:   nbCreated.UTC(),
					UpdatedAt:   nbUpdated.UTC(),
				}
			}
			out = append(out, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		return attachPhotos(ctx, tx, out)
	})
	if err != nil {
		return nil, err
	}
	if elapsed := time.Since(start); elapsed > slowQuery {
		s.log.Warn("slow task query",
			zap.Duration("elapsed", elapsed),
			zap.Int("offset", offset),
			zap.Int("limit", limit),
			zap.Int("rows", len(out)),
		)
	}
	return out, nil
}

func attachPhotos(ctx context.Context, tx pgx.Tx, details []model.TaskDetail) error {
	if len(details) == 0 {
		return nil
	}
	index := make(map[int64]int, len(details))
	ids := make([]int64, 0, len(details))
	for i, d := range details {
		index[d.ID] = i
		ids = append(ids, d.ID)
	}
	rows, err := tx.Query(ctx, `
		SELECT id, task_id, uri, created_at FROM photos
		WHERE task_id = ANY($1)
		ORDER BY created_at, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return err
		}
		i := index[p.TaskID]
		details[i].Photos = append(details[i].Photos, p)
	}
	return rows.Err()
}

func (s *Store) Count(ctx context.Context, q filter.Query) (model.AggregateCount, error) {
	var c model.AggregateCount
	if q.Unsatisfiable() {
		return c, nil
	}
	where, args := q.Where(filter.Postgres)
	err := s.pool.QueryRow(ctx,
		`SELECT `+filter.AggregateColumns+` FROM tasks t WHERE `+where, args...).
		Scan(filter.AggregateDest(&c)...)
	if err != nil {
		return model.AggregateCount{}, s.mapError("count tasks", err)
	}
	return c, nil
}
