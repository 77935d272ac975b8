// Package filter compiles a FilterSpec into a predicate and an ordering that
// every store applies identically, either in Go or rendered as SQL.
package filter

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
)

// Query is a compiled FilterSpec.
type Query struct {
	clauses []clause
	unsat   bool

	rank      [4]int // indexed by model.Priority, zero when priority order is off
	dateOrder bool
	byCreated bool
	desc      bool
}

// Compile applies the listing rules: not deleted, notebook scope, text,
// favorite, state mask, priority mask and the optional date range.
func Compile(spec model.FilterSpec) Query {
	q := Query{}
	q.setOrder(spec.Sort)

	q.clauses = append(q.clauses, notDeleted{})
	if !spec.SearchRangeAll {
		q.clauses = append(q.clauses, notebookIs{id: spec.NotebookID})
	}
	if text := strings.ToLower(spec.SearchQuery); text != "" {
		q.clauses = append(q.clauses, textContains{query: text})
	}
	if spec.FavoriteOnly {
		q.clauses = append(q.clauses, favoriteOnly{})
	}

	// An empty mask is an OR over no conditions: nothing matches.
	if spec.States.Empty() || spec.Priorities.Empty() {
		q.unsat = true
	}
	if spec.States&model.AllStates != model.AllStates {
		q.clauses = append(q.clauses, stateIn{set: spec.States & model.AllStates})
	}
	if spec.Priorities&model.AllPriorities != model.AllPriorities {
		q.clauses = append(q.clauses, priorityIn{set: spec.Priorities & model.AllPriorities})
	}

	if spec.DateEnabled {
		q.clauses = append(q.clauses, dateBetween{
			created: spec.Sort.Condition.ByCreated(),
			start:   spec.DateRangeStart.Truncate(time.Millisecond),
			end:     spec.DateRangeEnd.Truncate(time.Millisecond),
		})
	}
	return q
}

// CompileCount is Compile with the notebook selection taken from scope.
func CompileCount(scope model.NotebookScope, spec model.FilterSpec) Query {
	spec.SearchRangeAll = scope.All
	spec.NotebookID = scope.NotebookID
	return Compile(spec)
}

// CompileScope only excludes deleted rows and restricts to the scope.
func CompileScope(scope model.NotebookScope) Query {
	q := Query{}
	q.setOrder(model.DefaultFilterSpec().Sort)
	q.clauses = append(q.clauses, notDeleted{})
	if !scope.All {
		q.clauses = append(q.clauses, notebookIs{id: scope.NotebookID})
	}
	return q
}

func (q *Query) setOrder(s model.SortSpec) {
	switch s.PriorityOrder {
	case model.PriorityOrderHighFirst:
		q.rank = [4]int{model.PriorityHigh: 1, model.PriorityMedium: 2, model.PriorityLow: 3, model.PriorityNone: 4}
	case model.PriorityOrderLowFirst:
		q.rank = [4]int{model.PriorityLow: 1, model.PriorityMedium: 2, model.PriorityHigh: 3, model.PriorityNone: 4}
	}
	q.dateOrder = s.OrderEnabled
	q.byCreated = s.Condition.ByCreated()
	q.desc = s.Condition.Descending()
}

// Before narrows q to the rows ordered strictly before anchor. Counting
// them gives the anchor's current position in the listing.
func (q Query) Before(anchor model.Task) Query {
	out := q
	out.clauses = append(slices.Clip(q.clauses), orderedBefore{q: q, anchor: anchor})
	return out
}

// Unsatisfiable reports that no row can match, e.g. an empty state mask.
func (q Query) Unsatisfiable() bool { return q.unsat }

func (q Query) Match(t model.Task) bool {
	if q.unsat {
		return false
	}
	for _, c := range q.clauses {
		if !c.match(t) {
			return false
		}
	}
	return true
}

func (q Query) rankOf(p model.Priority) int {
	if q.rank == [4]int{} {
		return 0
	}
	if !p.Valid() {
		return 4
	}
	return q.rank[p]
}

// Compare orders by priority rank, then the date field, then id ascending.
func (q Query) Compare(a, b model.Task) int {
	if c := cmp.Compare(q.rankOf(a.Priority), q.rankOf(b.Priority)); c != 0 {
		return c
	}
	if q.dateOrder {
		da, db := a.UpdatedAt, b.UpdatedAt
		if q.byCreated {
			da, db = a.CreatedAt, b.CreatedAt
		}
		c := da.Compare(db)
		if q.desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

// Apply returns the matching tasks in query order.
func (q Query) Apply(tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if q.Match(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, q.Compare)
	return out
}

// Where renders the predicate for d. Placeholders are numbered from 1.
func (q Query) Where(d Dialect) (string, []any) {
	if q.unsat {
		return "1 = 0", nil
	}
	w := &writer{d: d}
	for i, c := range q.clauses {
		if i > 0 {
			w.write(" AND ")
		}
		c.render(w)
	}
	if len(q.clauses) == 0 {
		w.write("1 = 1")
	}
	return w.sb.String(), w.args
}

// OrderBy renders the ordering without the ORDER BY keyword.
func (q Query) OrderBy() string {
	var parts []string
	if q.rank != [4]int{} {
		parts = append(parts, q.rankExpr())
	}
	if q.dateOrder {
		col := "t.updated_at"
		if q.byCreated {
			col = "t.created_at"
		}
		dir := "ASC"
		if q.desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	parts = append(parts, "t.id ASC")
	return strings.Join(parts, ", ")
}

func (q Query) rankExpr() string {
	return fmt.Sprintf("CASE t.priority WHEN %d THEN %d WHEN %d THEN %d WHEN %d THEN %d ELSE 4 END",
		model.PriorityHigh, q.rank[model.PriorityHigh],
		model.PriorityMedium, q.rank[model.PriorityMedium],
		model.PriorityLow, q.rank[model.PriorityLow])
}

// AggregateColumns is the select list that fills a model.AggregateCount,
// in struct field order.
const AggregateColumns = `COUNT(*),
	COALESCE(SUM(CASE WHEN t.priority = 3 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN t.priority = 2 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN t.priority = 1 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN t.priority NOT IN (1, 2, 3) THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN t.state = 4 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN t.state = 5 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN t.state = 3 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN t.state = 2 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN t.state = 1 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN t.state NOT IN (1, 2, 3, 4, 5) THEN 1 ELSE 0 END), 0)`

// AggregateDest returns scan destinations matching AggregateColumns.
func AggregateDest(c *model.AggregateCount) []any {
	return []any{&c.Total, &c.High, &c.Medium, &c.Low, &c.None,
		&c.Completed, &c.Cancelled, &c.Active, &c.Suspended, &c.Waiting, &c.NotAssigned}
}
