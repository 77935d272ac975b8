// Package sqlite is the embedded record store backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

//go:embed schema.sql
var schemaFS embed.FS

type Store struct {
	db       *sql.DB
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

// Open creates the database file if needed and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("db path is empty")
	}
	if !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	source, err := dsn(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", source)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps the busy handler out of the way.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:       db,
		clock:    time.Now,
		log:      zap.NewNop(),
		notifier: repo.NewNotifier(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.notifier.Close()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Subscribe(ctx context.Context) <-chan repo.Change {
	return s.notifier.Subscribe(ctx)
}

func (s *Store) now() time.Time { return repo.Stamp(s.clock()) }

func applySchema(ctx context.Context, db *sql.DB) error {
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// dsn turns a plain path or a file: URI into a DSN that always carries the
// busy timeout and foreign key pragmas.
func dsn(path string) (string, error) {
	var base, rawQuery string
	if strings.HasPrefix(path, "file:") {
		base, rawQuery, _ = strings.Cut(path, "?")
	} else {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		base = (&url.URL{Scheme: "file", Path: path}).String()
		rawQuery = "mode=rwc"
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("parse db path %q: %w", path, err)
	}
	ensurePragma(q, "busy_timeout", "busy_timeout(5000)")
	ensurePragma(q, "foreign_keys", "foreign_keys(1)")
	return base + "?" + q.Encode(), nil
}

// ensurePragma adds value unless the DSN already sets the named pragma.
func ensurePragma(q url.Values, name, value string) {
	for _, p := range q["_pragma"] {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p)), name) {
			return
		}
	}
	q.Add("_pragma", value)
}

// withTx runs fn in a transaction and commits when it returns nil.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return repo.WrapIO(op, err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return repo.WrapIO(op, err)
	}
	return repo.WrapIO(op, tx.Commit())
}

func msOf(t time.Time) int64 { return t.UnixMilli() }

func timeOf(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMs(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := timeOf(v.Int64)
	return &t
}
