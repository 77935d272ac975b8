// Package postgres is the server record store backed by pgx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	pool     *pgxpool.Pool
	clock    repo.Clock
	log      *zap.Logger
	notifier *repo.Notifier
}

type Option func(*Store)

func WithClock(c repo.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

var _ repo.Store = (*Store)(nil)

// Open migrates the database to the latest schema and connects a pool.
func Open(ctx context.Context, connString string, opts ...Option) (*Store, error) {
	s := &Store{
		clock:    time.Now,
		log:      zap.NewNop(),
		notifier: repo.NewNotifier(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := Migrate(connString); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s.pool = pool
	s.log.Info("postgres store ready", zap.Int32("max_conns", config.MaxConns))
	return s, nil
}

// Migrate applies every embedded up migration.
func Migrate(connString string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(connString))
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// migrateURL rewrites a libpq URL to the scheme of the pgx/v5 migrate driver.
func migrateURL(connString string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connString, prefix) {
			return "pgx5://" + strings.TrimPrefix(connString, prefix)
		}
	}
	return connString
}

func (s *Store) Close() error {
	s.notifier.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Subscribe(ctx context.Context) <-chan repo.Change {
	return s.notifier.Subscribe(ctx)
}

func (s *Store) now() time.Time { return repo.Stamp(s.clock()) }

func (s *Store) mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrorNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return repo.ErrorConflict
		case "23503":
			return repo.ErrInvalidReference
		}
	}
	return repo.WrapIO(op, err)
}

// withTx runs fn in a read-write transaction.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return s.mapError(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return s.mapError(op, err)
	}
	return s.mapError(op, tx.Commit(ctx))
}

// withSnapshot runs fn in a read-only repeatable read transaction.
func (s *Store) withSnapshot(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return s.mapError(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return s.mapError(op, err)
	}
	return s.mapError(op, tx.Commit(ctx))
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
