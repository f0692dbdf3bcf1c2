package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/visitly/presence-gateway/internal/v1/logging"
	"github.com/visitly/presence-gateway/internal/v1/metrics"
	"github.com/visitly/presence-gateway/internal/v1/types"
)

// RoomCount pairs a room name with its effective member count.
type RoomCount struct {
	Name  types.RoomName
	Count int
}

// Registry maps room names to live Room instances. It exclusively owns
// insertion and removal; lookups hand out shared references that outlive any
// single connection.
type Registry struct {
	mu    sync.Mutex
	rooms map[types.RoomName]*Room
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[types.RoomName]*Room)}
}

// GetOrCreate returns the room with the given name, creating it on first use.
// Creation happens under the registry lock, so concurrent callers for the
// same name always converge on a single instance.
func (g *Registry) GetOrCreate(name types.RoomName) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.rooms[name]; ok {
		return r
	}

	logging.Info(context.Background(), "creating room", zap.String("room", string(name)))
	r := NewRoom()
	g.rooms[name] = r
	metrics.ActiveRooms.Inc()
	return r
}

// CleanupAll expires stale members in every room and removes rooms that ended
// up empty. The (name, room) pairs are snapshotted first so no room lock is
// taken while holding the registry lock.
func (g *Registry) CleanupAll(now time.Time, ttl time.Duration) {
	for _, entry := range g.snapshot() {
		count := entry.room.Cleanup(now, ttl)
		metrics.RoomParticipants.WithLabelValues(string(entry.name)).Set(float64(count))
		if count == 0 {
			g.remove(entry.name, entry.room)
		}
	}
}

// SnapshotCounts returns the effective count of every room with at least one
// live member.
func (g *Registry) SnapshotCounts(now time.Time, ttl time.Duration) []RoomCount {
	entries := g.snapshot()
	out := make([]RoomCount, 0, len(entries))
	for _, entry := range entries {
		if c := entry.room.ActiveCount(now, ttl); c > 0 {
			out = append(out, RoomCount{Name: entry.name, Count: c})
		}
	}
	return out
}

// Len returns the number of registered rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

type registryEntry struct {
	name types.RoomName
	room *Room
}

func (g *Registry) snapshot() []registryEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	entries := make([]registryEntry, 0, len(g.rooms))
	for name, room := range g.rooms {
		entries = append(entries, registryEntry{name: name, room: room})
	}
	return entries
}

// remove deletes the room iff it is still the registered instance and is
// genuinely empty. The evict mark is taken under the room's member lock, so a
// join that already inserted a member keeps the room alive and a join that
// lost the race re-fetches a fresh instance.
func (g *Registry) remove(name types.RoomName, room *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rooms[name] != room {
		return
	}
	if !room.tryEvict() {
		return
	}
	delete(g.rooms, name)
	metrics.ActiveRooms.Dec()
	metrics.RoomParticipants.DeleteLabelValues(string(name))
	logging.Info(context.Background(), "removed empty room", zap.String("room", string(name)))
}
