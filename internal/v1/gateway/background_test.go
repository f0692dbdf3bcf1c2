package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visitly/presence-gateway/internal/v1/auth"
	"github.com/visitly/presence-gateway/internal/v1/meta"
)

// flushRecorder wraps the memory store and records stats flushes.
type flushRecorder struct {
	*meta.MemoryStore
	mu      sync.Mutex
	flushes []int
}

func (f *flushRecorder) UpdateOnlineStats(_ context.Context, online int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes = append(f.flushes, online)
}

func (f *flushRecorder) recorded() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.flushes))
	copy(out, f.flushes)
	return out
}

func TestReaper_RemovesExpiredMembers(t *testing.T) {
	// Short TTL so a single reaper tick observes the expiry.
	hub := newTestHub("", 500*time.Millisecond)

	room := hub.Rooms().GetOrCreate("fading")
	_, ok := room.Join("sid-1", time.Now(), hub.TTL())
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.StartReaper(ctx)

	require.Eventually(t, func() bool {
		return hub.Rooms().Len() == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestFlusher_WritesOnlyOnChange(t *testing.T) {
	store := &flushRecorder{MemoryStore: meta.NewMemoryStore()}
	hub := NewHub(store, auth.NewOriginPolicy(""), nil, 30*time.Second, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.StartFlusher(ctx)

	// No change: nothing is written no matter how many ticks pass.
	time.Sleep(2200 * time.Millisecond)
	assert.Empty(t, store.recorded())

	store.UpsertIdentity(ctx, "sid-1", "sess-a", 1000)
	hub.publishOnline(ctx)

	require.Eventually(t, func() bool {
		return len(store.recorded()) == 1
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, []int{1}, store.recorded())

	// Steady state: still exactly one write.
	time.Sleep(2200 * time.Millisecond)
	assert.Equal(t, []int{1}, store.recorded())
}
