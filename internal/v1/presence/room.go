// Package presence implements TTL-based room membership: each room tracks the
// last heartbeat of its members, publishes the effective member count on a
// latch, and fans business events out to subscribers over a lossy broadcast.
package presence

import (
	"sync"
	"time"

	"github.com/visitly/presence-gateway/internal/v1/bus"
	"github.com/visitly/presence-gateway/internal/v1/types"
)

// Room holds the liveness map for one named room. A member is effective while
// now - lastSeen < ttl. The count latch only carries the latest value; the
// event bus is bounded and lossy for slow consumers.
type Room struct {
	mu      sync.RWMutex
	members map[types.SID]time.Time
	evicted bool

	counts *bus.Latch
	events *bus.Broadcaster
}

// NewRoom creates an empty room.
func NewRoom() *Room {
	return &Room{
		members: make(map[types.SID]time.Time),
		counts:  bus.NewLatch(0),
		events:  bus.NewBroadcaster(bus.DefaultBufferSize),
	}
}

// Join inserts or overwrites the member's last-seen timestamp and republishes
// the effective count if it changed. It returns false when the room has been
// evicted from its registry; the caller must re-fetch the room and retry.
func (r *Room) Join(sid types.SID, now time.Time, ttl time.Duration) (int, bool) {
	r.mu.Lock()
	if r.evicted {
		r.mu.Unlock()
		return 0, false
	}
	r.members[sid] = now
	r.mu.Unlock()

	return r.publishIfChanged(now, ttl), true
}

// Heartbeat refreshes the member's last-seen timestamp. Heartbeats are the
// high-frequency path: they never touch the count latch, because a live
// member staying live does not change the count. Unknown sids are a no-op.
func (r *Room) Heartbeat(sid types.SID, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[sid]; ok {
		r.members[sid] = now
	}
}

// Leave removes the member and republishes the effective count if it changed.
func (r *Room) Leave(sid types.SID, now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	delete(r.members, sid)
	r.mu.Unlock()

	return r.publishIfChanged(now, ttl)
}

// Cleanup expires members whose last heartbeat is older than ttl and
// reconciles the count latch with the effective count. Reconciling happens
// even when nothing expired, so a latch left stale by racing publishes is
// repaired within one sweep. Returns the effective count after expiry.
func (r *Room) Cleanup(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	for sid, last := range r.members {
		if now.Sub(last) >= ttl {
			delete(r.members, sid)
		}
	}
	r.mu.Unlock()

	return r.publishIfChanged(now, ttl)
}

// ActiveCount returns the number of effective (non-expired) members.
func (r *Room) ActiveCount(now time.Time, ttl time.Duration) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, last := range r.members {
		if now.Sub(last) < ttl {
			count++
		}
	}
	return count
}

// SubscribeCounts returns the room's count latch for change notification.
func (r *Room) SubscribeCounts() *bus.Latch {
	return r.counts
}

// SubscribeEvents attaches a lossy reader to the room's event bus. The cancel
// func must be called when the reader detaches.
func (r *Room) SubscribeEvents() (<-chan string, func()) {
	return r.events.Subscribe()
}

// PublishEvent enqueues a pre-serialized event for every subscriber. Never
// blocks the producer.
func (r *Room) PublishEvent(payload string) {
	r.events.Publish(payload)
}

// publishIfChanged recomputes the effective count and publishes it on the
// latch when it differs from the last published value.
func (r *Room) publishIfChanged(now time.Time, ttl time.Duration) int {
	count := r.ActiveCount(now, ttl)
	if r.counts.Get() != count {
		r.counts.Publish(count)
	}
	return count
}

// tryEvict marks the room evicted iff it has no members at all. After a
// successful evict any concurrent Join on this instance fails and the caller
// re-fetches from the registry, so removal never strands a joiner.
func (r *Room) tryEvict() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 {
		return false
	}
	r.evicted = true
	return true
}
