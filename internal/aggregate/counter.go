// Package aggregate computes live per-priority and per-state task counts.
package aggregate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/filter"
	"github.com/BuzzLyutic/notebook-tasks/internal/metrics"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

type Source interface {
	Count(ctx context.Context, q filter.Query) (model.AggregateCount, error)
	Subscribe(ctx context.Context) <-chan repo.Change
}

// Request selects what a subscription counts. A nil Spec asks for the
// scope summary, which only excludes deleted tasks.
type Request struct {
	Scope model.NotebookScope
	Spec  *model.FilterSpec
}

func (r Request) query() filter.Query {
	if r.Spec == nil {
		return filter.CompileScope(r.Scope)
	}
	return filter.CompileCount(r.Scope, *r.Spec)
}

func (r Request) Equal(o Request) bool {
	if r.Scope != o.Scope || (r.Spec == nil) != (o.Spec == nil) {
		return false
	}
	return r.Spec == nil || r.Spec.Equal(*o.Spec)
}

type Counter struct {
	src     Source
	log     *zap.Logger
	metrics *metrics.Metrics
}

type Option func(*Counter)

func WithLogger(l *zap.Logger) Option {
	return func(c *Counter) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Counter) { c.metrics = m }
}

func NewCounter(src Source, opts ...Option) *Counter {
	c := &Counter{src: src, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	return c
}

// Counts applies every listing rule, with scope in place of the spec's
// notebook selection.
func (c *Counter) Counts(ctx context.Context, scope model.NotebookScope, spec model.FilterSpec) (model.AggregateCount, error) {
	return c.count(ctx, Request{Scope: scope, Spec: &spec})
}

// Summary counts the live tasks of scope.
func (c *Counter) Summary(ctx context.Context, scope model.NotebookScope) (model.AggregateCount, error) {
	return c.count(ctx, Request{Scope: scope})
}

func (c *Counter) count(ctx context.Context, req Request) (model.AggregateCount, error) {
	q := req.query()
	if q.Unsatisfiable() {
		return model.AggregateCount{}, nil
	}
	n, err := c.src.Count(ctx, q)
	if err != nil {
		c.metrics.CountQueries.WithLabelValues(metrics.ResultError).Inc()
		return model.AggregateCount{}, fmt.Errorf("count tasks: %w", err)
	}
	c.metrics.CountQueries.WithLabelValues(metrics.ResultOK).Inc()
	return n, nil
}

// Watch emits the current counts, then new counts after every store change
// that touches the scope. Equal consecutive values are not repeated. A
// failed count is logged and skipped. The channel closes with ctx.
func (c *Counter) Watch(ctx context.Context, req Request) <-chan model.AggregateCount {
	changes := c.src.Subscribe(ctx)
	out := make(chan model.AggregateCount)

	go func() {
		defer close(out)
		var (
			last    model.AggregateCount
			emitted bool
		)
		emit := func() bool {
			v, err := c.count(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				c.log.Warn("aggregate count failed",
					zap.Bool("all", req.Scope.All),
					zap.Int64("notebook_id", req.Scope.NotebookID),
					zap.Error(err),
				)
				return true
			}
			if emitted && v == last {
				return true
			}
			select {
			case out <- v:
				last, emitted = v, true
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ch, ok := <-changes:
				if !ok {
					return
				}
				if !req.Scope.All && !ch.Touches(req.Scope.NotebookID) {
					continue
				}
				if !emit() {
					return
				}
			}
		}
	}()
	return out
}
