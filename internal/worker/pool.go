package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/metrics"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

// Scheduler receives tasks whose reminder is due.
type Scheduler interface {
	Schedule(ctx context.Context, t model.Task, at time.Time) error
}

// LogScheduler only writes the reminder to the log.
type LogScheduler struct {
	Logger *zap.Logger
}

func (s LogScheduler) Schedule(_ context.Context, t model.Task, at time.Time) error {
	s.Logger.Info("Reminder",
		zap.Int64("task_id", t.ID),
		zap.String("title", t.Title),
		zap.Time("at", at),
	)
	return nil
}

type ReminderSource interface {
	ListReminders(ctx context.Context, dueFrom, dueTo time.Time) ([]model.Task, error)
}

type job struct {
	task model.Task
	at   time.Time
}

// Pool scans the store for reminders on a fixed interval and hands them to
// count workers.
type Pool struct {
	src      ReminderSource
	sched    Scheduler
	logger   *zap.Logger
	metrics  *metrics.Metrics
	count    int
	interval time.Duration
	clock    repo.Clock

	jobs chan job
	wg   sync.WaitGroup
	stop chan struct{}

	mu       sync.Mutex
	lastScan time.Time
}

type Option func(*Pool)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

func WithClock(c repo.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

func NewPool(src ReminderSource, sched Scheduler, logger *zap.Logger, count int, interval time.Duration, opts ...Option) *Pool {
	p := &Pool{
		src:      src,
		sched:    sched,
		logger:   logger,
		count:    count,
		interval: interval,
		clock:    time.Now,
		jobs:     make(chan job),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.New(nil)
	}
	p.lastScan = p.clock()
	return p
}

func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("Starting reminder workers", zap.Int("workers", p.count), zap.Duration("interval", p.interval))

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.wg.Add(1)
	go p.scanner(ctx)
}

func (p *Pool) Stop() {
	p.logger.Info("Stopping reminder workers...")
	close(p.stop)
	p.wg.Wait()
	p.logger.Info("Reminder workers stopped")
}

func (p *Pool) scanner(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Scan(ctx); err != nil && !repo.IsCanceled(err) {
				p.logger.Warn("reminder scan failed", zap.Error(err))
			}
		}
	}
}

// Scan dispatches every reminder firing in (last scan, now]. A failed read
// leaves the window open so the next scan covers it again.
func (p *Pool) Scan(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	from := p.lastScan
	// A BEFORE reminder fires up to MaxReminderOffset ahead of its due date.
	tasks, err := p.src.ListReminders(ctx, from, now.Add(model.MaxReminderOffset*time.Minute))
	if err != nil {
		return 0, fmt.Errorf("list reminders: %w", err)
	}

	dispatched := 0
	for _, t := range tasks {
		at, ok := t.ReminderAt()
		if !ok || !at.After(from) || at.After(now) {
			continue
		}
		select {
		case p.jobs <- job{task: t, at: at}:
			dispatched++
		case <-p.stop:
			return dispatched, nil
		case <-ctx.Done():
			return dispatched, ctx.Err()
		}
	}
	p.lastScan = now
	if dispatched > 0 {
		p.logger.Debug("reminders dispatched", zap.Int("count", dispatched), zap.Int("checked", len(tasks)))
	}
	return dispatched, nil
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			if err := p.sched.Schedule(ctx, j.task, j.at); err != nil {
				p.logger.Error("worker error", zap.Int("worker", id), zap.Int64("task_id", j.task.ID), zap.Error(err))
				continue
			}
			p.metrics.Reminders.Inc()
		}
	}
}
