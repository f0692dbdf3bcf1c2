package bus

import "sync"

// DefaultBufferSize is the per-subscriber ring capacity for broadcast events.
const DefaultBufferSize = 256

// Broadcaster fans pre-serialized event strings out to any number of
// subscribers. Each subscriber owns a bounded buffer; when a subscriber falls
// behind, its oldest pending message is dropped to make room for the newest.
// Publishing never blocks and a slow subscriber is never disconnected.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[uint64]chan string
	nextID  uint64
	bufSize int
}

// NewBroadcaster creates a Broadcaster with the given per-subscriber buffer
// size. A non-positive size falls back to DefaultBufferSize.
func NewBroadcaster(bufSize int) *Broadcaster {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Broadcaster{
		subs:    make(map[uint64]chan string),
		bufSize: bufSize,
	}
}

// Subscribe registers a new reader. The returned cancel func must be called
// when the reader is done; it detaches the subscriber and closes its channel.
func (b *Broadcaster) Subscribe() (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan string, b.bufSize)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish enqueues msg for every subscriber. Per-producer order is preserved
// by the subscriber channels; cross-producer order is enqueue order under the
// broadcaster lock.
func (b *Broadcaster) Publish(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			// Buffer full: shed the oldest message, then retry once. A cancel
			// racing here leaves the message undelivered, which is fine.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of attached subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
