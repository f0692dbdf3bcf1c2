package meta

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(rc)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_UpsertAndFind(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	s.UpsertIdentity(ctx, "sid-1", "sess-a", 1000)

	rec, ok := s.FindBySession(ctx, "sess-a")
	require.True(t, ok)
	assert.Equal(t, "sid-1", rec.Identity)
	assert.Equal(t, int64(1000), rec.ConnectedAtMs)
}

func TestRedisStore_UpsertPreservesConnectedAt(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	s.UpsertIdentity(ctx, "sid-1", "sess-a", 1000)
	s.UpsertIdentity(ctx, "sid-1", "sess-b", 2000)

	rec, ok := s.FindBySession(ctx, "sess-b")
	require.True(t, ok)
	assert.Equal(t, int64(1000), rec.ConnectedAtMs)
	assert.Equal(t, int64(2000), rec.UpdatedAtMs)
}

func TestRedisStore_UniqueSessionCount(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	s.UpsertIdentity(ctx, "sid-1", "sess-a", 1000)
	s.UpsertIdentity(ctx, "sid-2", "sess-a", 1000)
	s.UpsertIdentity(ctx, "sid-3", "sess-b", 1000)

	assert.Equal(t, 2, s.UniqueSessionCount(ctx))

	s.Clear(ctx, "sid-3")
	assert.Equal(t, 1, s.UniqueSessionCount(ctx))
}

func TestRedisStore_JoinLeaveRoom(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	s.UpsertIdentity(ctx, "sid-1", "sess-a", 1000)
	s.JoinRoom(ctx, "sid-1", "/docs", 1500)

	records := s.RoomPresence(ctx, "/docs")
	require.Len(t, records, 1)
	assert.Equal(t, int64(1500), records[0].RoomJoinedAt["/docs"])

	s.LeaveRoom(ctx, "sid-1", "/docs", 2000)
	assert.Empty(t, s.RoomPresence(ctx, "/docs"))
}

func TestRedisStore_JoinRoomUnknownSidIsNoop(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	s.JoinRoom(ctx, "ghost", "/docs", 1500)
	assert.Empty(t, s.RoomPresence(ctx, "/docs"))
}

func TestRedisStore_TouchBySession(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	s.UpsertIdentity(ctx, "sid-1", "sess-a", 1000)
	s.UpsertIdentity(ctx, "sid-2", "sess-a", 1000)

	s.TouchBySession(ctx, "sess-a", 7000)

	rec, ok := s.FindBySession(ctx, "sess-a")
	require.True(t, ok)
	assert.Equal(t, int64(7000), rec.UpdatedAtMs)
}

func TestRedisStore_OnlineStatsMaxIsMonotonic(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	s.UpdateOnlineStats(ctx, 5)
	s.UpdateOnlineStats(ctx, 12)
	s.UpdateOnlineStats(ctx, 3) // Lower count must not shrink the max.

	max, total, ok := s.OnlineStatsToday(ctx)
	require.True(t, ok)
	assert.Equal(t, 12, max)
	assert.Equal(t, 3, total)
}

func TestRedisStore_OnlineStatsTodayEmpty(t *testing.T) {
	s, _ := newTestRedisStore(t)
	_, _, ok := s.OnlineStatsToday(context.Background())
	assert.False(t, ok)
}

func TestRedisStore_OnlineStatsKeyedByDate(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	s.UpdateOnlineStats(ctx, 8)

	day := time.Now().Format("2006-01-02")
	raw := mr.HGet("max_online_count", day)
	assert.Equal(t, "8", raw)
	assert.Equal(t, "1", mr.HGet("max_online_count:total", day))
}

func TestRedisStore_CorruptRecordIsSkipped(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	mr.HSet("socket", "bad", "{not json")
	s.UpsertIdentity(ctx, "sid-1", "sess-a", 1000)

	assert.Equal(t, 1, s.UniqueSessionCount(ctx))
	// The next write through the corrupt key repairs it.
	s.UpsertIdentity(ctx, "bad", "sess-b", 2000)
	assert.Equal(t, 2, s.UniqueSessionCount(ctx))
}

func TestRedisStore_OperationsSurviveBackendFailure(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	s.UpsertIdentity(ctx, "sid-1", "sess-a", 1000)
	mr.Close()

	// Mutations are dropped and reads degrade to zero values; nothing panics
	// or propagates an error to the session.
	s.UpsertIdentity(ctx, "sid-2", "sess-b", 2000)
	assert.Equal(t, 0, s.UniqueSessionCount(ctx))
	_, ok := s.FindBySession(ctx, "sess-a")
	assert.False(t, ok)
}

func TestRedisStore_Ping(t *testing.T) {
	s, mr := newTestRedisStore(t)
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
