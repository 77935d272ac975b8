// Package paging loads fixed-size task pages for the current filter and keeps
// them coherent with filter and store changes.
package paging

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BuzzLyutic/notebook-tasks/internal/filter"
	"github.com/BuzzLyutic/notebook-tasks/internal/metrics"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

const PageSize = 20

var (
	// ErrStale marks a result computed under a superseded filter or store
	// version. Callers drop it.
	ErrStale       = errors.New("stale page")
	ErrInvalidPage = errors.New("page number must be positive")
)

// LoadError is a store failure while loading one page. The same page may be
// requested again.
type LoadError struct {
	Page    int
	Version uint64
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load page %d (version %d): %v", e.Page, e.Version, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type Page struct {
	Number  int                `json:"number"`
	Items   []model.TaskDetail `json:"items"`
	PrevKey *int               `json:"prev_key,omitempty"`
	NextKey *int               `json:"next_key,omitempty"`
	Version uint64             `json:"version"`
}

func newPage(n int, items []model.TaskDetail, version uint64) Page {
	if items == nil {
		items = []model.TaskDetail{}
	}
	p := Page{Number: n, Items: items, Version: version}
	if n > 1 {
		prev := n - 1
		p.PrevKey = &prev
	}
	if len(items) == PageSize {
		next := n + 1
		p.NextKey = &next
	}
	return p
}

// Source is what the engine reads from and listens to.
type Source interface {
	repo.TaskReader
	// Get reads one task directly, deleted rows included.
	Get(ctx context.Context, id int64) (model.Task, error)
	Subscribe(ctx context.Context) <-chan repo.Change
}

type Engine struct {
	src     Source
	log     *zap.Logger
	metrics *metrics.Metrics
	group   singleflight.Group

	mu      sync.Mutex
	version uint64
	spec    model.FilterSpec
	hasSpec bool
	gen     context.Context
	cancel  context.CancelFunc
	cache   map[int]Page
	invalid chan struct{}
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:     src,
		log:     zap.NewNop(),
		cache:   make(map[int]Page),
		invalid: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	e.gen, e.cancel = context.WithCancel(context.Background())
	return e
}

// bumpLocked starts a new version: in-flight loads are cancelled, cached
// pages dropped and Invalidated waiters released.
func (e *Engine) bumpLocked() {
	e.version++
	e.cancel()
	e.gen, e.cancel = context.WithCancel(context.Background())
	clear(e.cache)
	close(e.invalid)
	e.invalid = make(chan struct{})
	e.metrics.Invalidations.Inc()
}

func (e *Engine) Version() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// SetSpec makes spec current. It reports whether the version changed.
func (e *Engine) SetSpec(spec model.FilterSpec) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setSpecLocked(spec)
}

func (e *Engine) setSpecLocked(spec model.FilterSpec) bool {
	if e.hasSpec && e.spec.Equal(spec) {
		return false
	}
	e.spec = spec
	e.hasSpec = true
	e.bumpLocked()
	return true
}

// Invalidate drops every cached page and supersedes in-flight loads.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.bumpLocked()
	e.mu.Unlock()
}

// Invalidated is closed on the next version change.
func (e *Engine) Invalidated() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invalid
}

// Load returns page n (1-indexed) of the tasks matching spec.
func (e *Engine) Load(ctx context.Context, n int, spec model.FilterSpec) (Page, error) {
	if n < 1 {
		return Page{}, ErrInvalidPage
	}
	e.mu.Lock()
	e.setSpecLocked(spec)
	v, gen := e.version, e.gen
	if p, ok := e.cache[n]; ok {
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	q := filter.Compile(spec)
	if q.Unsatisfiable() {
		e.metrics.PageLoads.WithLabelValues(metrics.ResultEmpty).Inc()
		return newPage(n, nil, v), nil
	}

	key := strconv.FormatUint(v, 10) + "/" + strconv.Itoa(n)
	ch := e.group.DoChan(key, func() (any, error) {
		return e.fetch(gen, v, n, q)
	})
	select {
	case <-ctx.Done():
		return Page{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrStale) {
				e.metrics.PageLoads.WithLabelValues(metrics.ResultStale).Inc()
			}
			return Page{}, res.Err
		}
		if e.Version() != v {
			e.metrics.PageLoads.WithLabelValues(metrics.ResultStale).Inc()
			return Page{}, ErrStale
		}
		return res.Val.(Page), nil
	}
}

func (e *Engine) fetch(gen context.Context, v uint64, n int, q filter.Query) (Page, error) {
	e.mu.Lock()
	if e.version != v {
		e.mu.Unlock()
		return Page{}, ErrStale
	}
	if p, ok := e.cache[n]; ok {
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	start := time.Now()
	items, err := e.src.Query(gen, q, (n-1)*PageSize, PageSize)
	e.metrics.PageLoadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if gen.Err() != nil {
			return Page{}, ErrStale
		}
		e.metrics.PageLoads.WithLabelValues(metrics.ResultError).Inc()
		e.log.Warn("page load failed",
			zap.Int("page", n),
			zap.Uint64("version", v),
			zap.Error(err),
		)
		return Page{}, &LoadError{Page: n, Version: v, Err: err}
	}

	p := newPage(n, items, v)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.version != v {
		return Page{}, ErrStale
	}
	e.cache[n] = p
	e.metrics.PageLoads.WithLabelValues(metrics.ResultOK).Inc()
	return p, nil
}

// Pages yields pages 1, 2, ... until a short page. It stops silently when
// the filter is superseded; wait on Invalidated and range again.
func (e *Engine) Pages(ctx context.Context, spec model.FilterSpec) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		for n := 1; ; n++ {
			p, err := e.Load(ctx, n, spec)
			if errors.Is(err, ErrStale) {
				return
			}
			if err != nil {
				yield(Page{}, err)
				return
			}
			if !yield(p, nil) || p.NextKey == nil {
				return
			}
		}
	}
}

// Run invalidates the engine on every store change that can affect the
// current filter scope. It returns when ctx is done or the store closes.
func (e *Engine) Run(ctx context.Context) error {
	return e.Watch(ctx, e.src.Subscribe(ctx))
}

// Watch is Run over an existing subscription.
func (e *Engine) Watch(ctx context.Context, changes <-chan repo.Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			e.applyChange(c)
		}
	}
}

func (e *Engine) applyChange(c repo.Change) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hasSpec && !e.spec.SearchRangeAll && !c.Touches(e.spec.NotebookID) {
		return
	}
	e.bumpLocked()
	e.log.Debug("pages invalidated", zap.Uint64("version", e.version), zap.Int("tasks", len(c.Tasks)))
}

// Follow makes every spec received from specs current.
func (e *Engine) Follow(ctx context.Context, specs <-chan model.FilterSpec) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case spec, ok := <-specs:
			if !ok {
				return nil
			}
			e.SetSpec(spec)
		}
	}
}
