package aggregate

import (
	"context"
	"sync"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
)

// Tracker keeps one Watch subscription for the request currently on screen
// and replaces it whenever the request changes.
type Tracker struct {
	counter *Counter
	out     chan model.AggregateCount

	mu     sync.Mutex
	gen    uint64
	req    Request
	cancel context.CancelFunc
}

func NewTracker(c *Counter) *Tracker {
	return &Tracker{
		counter: c,
		out:     make(chan model.AggregateCount, 1),
	}
}

// Updates carries the counts of the current request. A slow reader only
// sees the latest value.
func (t *Tracker) Updates() <-chan model.AggregateCount { return t.out }

// Track switches to req. Tracking the current request again is a no-op.
func (t *Tracker) Track(ctx context.Context, req Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil && t.req.Equal(req) {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	t.req = req
	select {
	case <-t.out:
	default:
	}
	sub, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	gen := t.gen
	in := t.counter.Watch(sub, req)
	go func() {
		for v := range in {
			t.deliver(gen, v)
		}
	}()
}

func (t *Tracker) deliver(gen uint64, v model.AggregateCount) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	select {
	case t.out <- v:
		return
	default:
	}
	select {
	case <-t.out:
	default:
	}
	t.out <- v
}

// Stop cancels the current subscription.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
}
