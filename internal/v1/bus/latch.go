// Package bus provides the two in-process channel primitives the gateway is
// built on: a Latch carrying only the latest published value, and a
// Broadcaster fanning events out to subscribers with bounded, lossy buffers.
// The two are deliberately distinct: counts coalesce, events fan out.
package bus

import "sync"

// Latch is a single-slot notification channel. Publishing stores the latest
// value and wakes every waiter; observers that are slow to read simply see
// the newest value, intermediate values are coalesced.
type Latch struct {
	mu      sync.Mutex
	value   int
	changed chan struct{}
}

// NewLatch creates a Latch holding the given initial value.
func NewLatch(initial int) *Latch {
	return &Latch{
		value:   initial,
		changed: make(chan struct{}),
	}
}

// Get returns the latest published value.
func (l *Latch) Get() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Publish stores v and notifies all current waiters. Publishing never blocks.
func (l *Latch) Publish(v int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = v
	close(l.changed)
	l.changed = make(chan struct{})
}

// Changed returns a channel that is closed on the next publish. Callers
// select on it and then read Get; a publish that lands between the Get and
// the next Changed call closes the previously returned channel, so updates
// are never missed, only coalesced.
func (l *Latch) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}
