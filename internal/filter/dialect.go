package filter

import (
	"fmt"
	"time"
)

// Dialect adapts rendered clauses to one SQL engine.
type Dialect interface {
	Placeholder(n int) string
	// Lower folds expr to lower case the way strings.ToLower does.
	Lower(expr string) string
	// Contains renders a substring test of an already-lowered needle placeholder.
	Contains(expr, needle string) string
	// Time converts a timestamp to the column representation.
	Time(t time.Time) any
}

// SQLiteLower names the scalar function the sqlite store registers for
// Unicode case folding. The builtin lower() only folds ASCII.
const SQLiteLower = "go_lower"

type sqliteDialect struct{}

// SQLite stores timestamps as unix milliseconds.
var SQLite Dialect = sqliteDialect{}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) Lower(expr string) string { return SQLiteLower + "(" + expr + ")" }

func (sqliteDialect) Contains(expr, needle string) string {
	return fmt.Sprintf("instr(%s, %s) > 0", expr, needle)
}

func (sqliteDialect) Time(t time.Time) any { return t.UnixMilli() }

type postgresDialect struct{}

var Postgres Dialect = postgresDialect{}

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) Lower(expr string) string { return "lower(" + expr + ")" }

func (postgresDialect) Contains(expr, needle string) string {
	return fmt.Sprintf("strpos(%s, %s) > 0", expr, needle)
}

func (postgresDialect) Time(t time.Time) any { return t.UTC() }
