package repo

import (
	"context"
	"slices"
	"sync"
)

// Change describes a committed write. Notebooks lists every notebook whose
// task set may have changed, before and after the write.
type Change struct {
	Tasks     []int64
	Notebooks []int64
}

// Touches reports whether the change may affect tasks in notebookID.
func (c Change) Touches(notebookID int64) bool {
	return slices.Contains(c.Notebooks, notebookID)
}

func (c Change) merge(o Change) Change {
	return Change{
		Tasks:     union(c.Tasks, o.Tasks),
		Notebooks: union(c.Notebooks, o.Notebooks),
	}
}

func union(a, b []int64) []int64 {
	out := slices.Clone(a)
	for _, v := range b {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// Notifier fans out changes. A slow subscriber sees pending changes merged
// into one and never blocks the writer.
type Notifier struct {
	mu     sync.Mutex
	subs   map[chan Change]struct{}
	closed bool
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[chan Change]struct{})}
}

// Subscribe returns a channel that is closed once ctx is done.
func (n *Notifier) Subscribe(ctx context.Context) <-chan Change {
	ch := make(chan Change, 1)
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch
	}
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		if _, ok := n.subs[ch]; ok {
			delete(n.subs, ch)
			close(ch)
		}
		n.mu.Unlock()
	}()
	return ch
}

func (n *Notifier) Publish(c Change) {
	if len(c.Tasks) == 0 && len(c.Notebooks) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- c:
			continue
		default:
		}
		merged := c
		select {
		case old := <-ch:
			merged = old.merge(c)
		default:
		}
		select {
		case ch <- merged:
		default:
		}
	}
}

// Close drops every subscriber.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	for ch := range n.subs {
		delete(n.subs, ch)
		close(ch)
	}
}
