package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/filter"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

const slowQuery = 200 * time.Millisecond

// Query reads the window and its photos inside one transaction.
func (s *Store) Query(ctx context.Context, q filter.Query, offset, limit int) ([]model.TaskDetail, error) {
	if q.Unsatisfiable() {
		return []model.TaskDetail{}, nil
	}
	start := time.Now()
	where, args := q.Where(filter.SQLite)
	stmt := `
		SELECT ` + taskColumns + `, n.id, n.title, n.description, n.priority, n.created_at, n.updated_at
		FROM tasks t LEFT JOIN notebooks n ON n.id = t.notebook_id
		WHERE ` + where + `
		ORDER BY ` + q.OrderBy() + `
		LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	out := []model.TaskDetail{}
	err := s.withTx(ctx, "query tasks", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, stmt, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				nbID                 sql.NullInt64
				nbTitle, nbDesc      sql.NullString
				nbPriority           sql.NullInt64
				nbCreated, nbUpdated sql.NullInt64
			)
			t, err := scanTask(rows, &nbID, &nbTitle, &nbDesc, &nbPriority, &nbCreated, &nbUpdated)
			if err != nil {
				return err
			}
			d := model.TaskDetail{Task: t, Photos: []model.Photo{}}
			if nbID.Valid {
				d.Notebook = &model.Notebook{
					ID:          nbID.Int64,
					Title:       nbTitle.String,
					Description: nbDesc.String,
					Priority:    model.Priority(nbPriority.Int64),
					CreatedAt:   timeOf(nbCreated.Int64),
					UpdatedAt:   timeOf(nbUpdated.Int64),
				}
			}
			out = append(out, d)
		}
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

func attachPhotos(ctx context.Context, tx *sql.Tx, details []model.TaskDetail) error {
	if len(details) == 0 {
		return nil
	}
	index := make(map[int64]int, len(details))
	phs := make([]string, 0, len(details))
	args := make([]any, 0, len(details))
	for i, d := range details {
		index[d.ID] = i
		phs = append(phs, "?")
		args = append(args, d.ID)
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT id, task_id, uri, created_at FROM photos
		WHERE task_id IN (`+strings.Join(phs, ", ")+`)
		ORDER BY created_at, id`, args...)
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
	where, args := q.Where(filter.SQLite)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+filter.AggregateColumns+` FROM tasks t WHERE `+where, args...).
		Scan(filter.AggregateDest(&c)...)
	if err != nil {
		return model.AggregateCount{}, repo.WrapIO("count tasks", err)
	}
	return c, nil
}
