package filter

import (
	"strings"
	"time"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
)

// clause is one filter primitive. match and render must agree on every row.
type clause interface {
	match(t model.Task) bool
	render(w *writer)
}

type notDeleted struct{}

func (notDeleted) match(t model.Task) bool { return !t.Deleted }
func (notDeleted) render(w *writer)         { w.write("NOT t.deleted") }

type notebookIs struct{ id int64 }

func (c notebookIs) match(t model.Task) bool { return t.NotebookID == c.id }
func (c notebookIs) render(w *writer)         { w.write("t.notebook_id = " + w.arg(c.id)) }

// textContains holds the lowered query.
type textContains struct{ query string }

func (c textContains) match(t model.Task) bool {
	return strings.Contains(strings.ToLower(t.Title), c.query) ||
		strings.Contains(strings.ToLower(t.Description), c.query)
}

func (c textContains) render(w *writer) {
	title := w.d.Contains(w.d.Lower("t.title"), w.arg(c.query))
	desc := w.d.Contains(w.d.Lower("t.description"), w.arg(c.query))
	w.write("(" + title + " OR " + desc + ")")
}

type favoriteOnly struct{}

func (favoriteOnly) match(t model.Task) bool { return t.Favorite }
func (favoriteOnly) render(w *writer)         { w.write("t.favorite") }

type stateIn struct{ set model.StateSet }

func (c stateIn) match(t model.Task) bool { return c.set.Has(t.State) }

func (c stateIn) render(w *writer) {
	members := c.set.Members()
	phs := make([]string, 0, len(members))
	for _, st := range members {
		phs = append(phs, w.arg(int(st)))
	}
	w.write("t.state IN (" + strings.Join(phs, ", ") + ")")
}

type priorityIn struct{ set model.PrioritySet }

func (c priorityIn) match(t model.Task) bool { return c.set.Has(t.Priority) }

func (c priorityIn) render(w *writer) {
	members := c.set.Members()
	phs := make([]string, 0, len(members))
	for _, p := range members {
		phs = append(phs, w.arg(int(p)))
	}
	w.write("t.priority IN (" + strings.Join(phs, ", ") + ")")
}

// dateBetween is inclusive; a zero bound leaves that side open.
type dateBetween struct {
	created    bool
	start, end time.Time
}

func (c dateBetween) value(t model.Task) time.Time {
	if c.created {
		return t.CreatedAt
	}
	return t.UpdatedAt
}

func (c dateBetween) match(t model.Task) bool {
	v := c.value(t)
	if !c.start.IsZero() && v.Before(c.start) {
		return false
	}
	if !c.end.IsZero() && v.After(c.end) {
		return false
	}
	return true
}

func (c dateBetween) render(w *writer) {
	col := "t.updated_at"
	if c.created {
		col = "t.created_at"
	}
	var parts []string
	if !c.start.IsZero() {
		parts = append(parts, col+" >= "+w.arg(w.d.Time(c.start)))
	}
	if !c.end.IsZero() {
		parts = append(parts, col+" <= "+w.arg(w.d.Time(c.end)))
	}
	if len(parts) == 0 {
		w.write("1 = 1")
		return
	}
	w.write(strings.Join(parts, " AND "))
}

// orderedBefore keeps rows that sort strictly before anchor under q's order.
type orderedBefore struct {
	q      Query
	anchor model.Task
}

func (c orderedBefore) match(t model.Task) bool { return c.q.Compare(t, c.anchor) < 0 }

func (c orderedBefore) render(w *writer) {
	type key struct {
		expr, op string
		val      any
	}
	var keys []key
	if c.q.rank != [4]int{} {
		keys = append(keys, key{c.q.rankExpr(), "<", c.q.rankOf(c.anchor.Priority)})
	}
	if c.q.dateOrder {
		col, v := "t.updated_at", c.anchor.UpdatedAt
		if c.q.byCreated {
			col, v = "t.created_at", c.anchor.CreatedAt
		}
		op := "<"
		if c.q.desc {
			op = ">"
		}
		keys = append(keys, key{col, op, w.d.Time(v)})
	}
	keys = append(keys, key{"t.id", "<", c.anchor.ID})

	terms := make([]string, 0, len(keys))
	for i, k := range keys {
		var parts []string
		for _, prev := range keys[:i] {
			parts = append(parts, prev.expr+" = "+w.arg(prev.val))
		}
		parts = append(parts, k.expr+" "+k.op+" "+w.arg(k.val))
		terms = append(terms, "("+strings.Join(parts, " AND ")+")")
	}
	w.write("(" + strings.Join(terms, " OR ") + ")")
}

type writer struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

func (w *writer) write(s string) { w.sb.WriteString(s) }

func (w *writer) arg(v any) string {
	w.args = append(w.args, v)
	return w.d.Placeholder(len(w.args))
}
