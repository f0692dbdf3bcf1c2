package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visitly/presence-gateway/internal/v1/types"
)

const testTTL = 30 * time.Second

func TestRoom_JoinIncrementsCount(t *testing.T) {
	r := NewRoom()
	now := time.Now()

	count, ok := r.Join("sid-1", now, testTTL)
	require.True(t, ok)
	assert.Equal(t, 1, count)

	count, ok = r.Join("sid-2", now, testTTL)
	require.True(t, ok)
	assert.Equal(t, 2, count)
}

func TestRoom_JoinIsIdempotentPerSid(t *testing.T) {
	r := NewRoom()
	now := time.Now()

	r.Join("sid-1", now, testTTL)
	count, ok := r.Join("sid-1", now.Add(time.Second), testTTL)
	require.True(t, ok)
	assert.Equal(t, 1, count)
}

func TestRoom_MemberExpiresAfterTTL(t *testing.T) {
	r := NewRoom()
	now := time.Now()

	r.Join("sid-1", now, testTTL)
	assert.Equal(t, 1, r.ActiveCount(now.Add(testTTL-time.Millisecond), testTTL))
	// At exactly ttl the member is no longer effective.
	assert.Equal(t, 0, r.ActiveCount(now.Add(testTTL), testTTL))
}

func TestRoom_HeartbeatExtendsLiveness(t *testing.T) {
	r := NewRoom()
	now := time.Now()

	r.Join("sid-1", now, testTTL)
	r.Heartbeat("sid-1", now.Add(20*time.Second))

	// Without the heartbeat the member would be expired here.
	assert.Equal(t, 1, r.ActiveCount(now.Add(40*time.Second), testTTL))
	assert.Equal(t, 0, r.ActiveCount(now.Add(51*time.Second), testTTL))
}

func TestRoom_HeartbeatUnknownSidIsNoop(t *testing.T) {
	r := NewRoom()
	now := time.Now()

	r.Heartbeat("ghost", now)
	assert.Equal(t, 0, r.ActiveCount(now, testTTL))
}

func TestRoom_HeartbeatDoesNotRepublishCount(t *testing.T) {
	r := NewRoom()
	now := time.Now()

	r.Join("sid-1", now, testTTL)
	ch := r.SubscribeCounts().Changed()

	r.Heartbeat("sid-1", now.Add(time.Second))

	select {
	case <-ch:
		t.Fatal("heartbeat must not publish a count change")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRoom_LeaveDecrementsCount(t *testing.T) {
	r := NewRoom()
	now := time.Now()

	r.Join("sid-1", now, testTTL)
	r.Join("sid-2", now, testTTL)
	count := r.Leave("sid-1", now, testTTL)
	assert.Equal(t, 1, count)

	// Leaving twice is harmless.
	count = r.Leave("sid-1", now, testTTL)
	assert.Equal(t, 1, count)
}

func TestRoom_CleanupExpiresStaleMembers(t *testing.T) {
	r := NewRoom()
	now := time.Now()

	r.Join("stale", now, testTTL)
	r.Join("fresh", now.Add(20*time.Second), testTTL)

	count := r.Cleanup(now.Add(35*time.Second), testTTL)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, r.ActiveCount(now.Add(35*time.Second), testTTL))
}

func TestRoom_CleanupPublishesNewCount(t *testing.T) {
	r := NewRoom()
	now := time.Now()

	r.Join("sid-1", now, testTTL)
	latch := r.SubscribeCounts()
	ch := latch.Changed()

	r.Cleanup(now.Add(testTTL+time.Second), testTTL)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected count change after expiry")
	}
	assert.Equal(t, 0, latch.Get())
}

func TestRoom_CleanupRepairsStaleLatch(t *testing.T) {
	r := NewRoom()
	now := time.Now()

	r.Join("sid-1", now, testTTL)
	latch := r.SubscribeCounts()

	// Simulate a latch left behind by interleaved publishes.
	latch.Publish(5)

	// A sweep with nothing to expire still reconciles the latch.
	count := r.Cleanup(now.Add(time.Second), testTTL)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, latch.Get())
}

func TestRoom_CountLatchObservesJoinAndLeave(t *testing.T) {
	r := NewRoom()
	now := time.Now()
	latch := r.SubscribeCounts()

	ch := latch.Changed()
	r.Join("sid-1", now, testTTL)
	<-ch
	assert.Equal(t, 1, latch.Get())

	ch = latch.Changed()
	r.Leave("sid-1", now, testTTL)
	<-ch
	assert.Equal(t, 0, latch.Get())
}

func TestRoom_EventFanout(t *testing.T) {
	r := NewRoom()
	ch1, cancel1 := r.SubscribeEvents()
	ch2, cancel2 := r.SubscribeEvents()
	defer cancel1()
	defer cancel2()

	r.PublishEvent(`{"type":"ACTIVITY_JOIN_PRESENCE"}`)

	assert.Equal(t, `{"type":"ACTIVITY_JOIN_PRESENCE"}`, <-ch1)
	assert.Equal(t, `{"type":"ACTIVITY_JOIN_PRESENCE"}`, <-ch2)
}

func TestRoom_JoinFailsAfterEvict(t *testing.T) {
	r := NewRoom()
	require.True(t, r.tryEvict())

	_, ok := r.Join("sid-1", time.Now(), testTTL)
	assert.False(t, ok)
}

func TestRoom_TryEvictFailsWithMembers(t *testing.T) {
	r := NewRoom()
	r.Join("sid-1", time.Now(), testTTL)
	assert.False(t, r.tryEvict())
}

func TestRoom_ExpiredMemberStillBlocksEvict(t *testing.T) {
	// Eviction requires the member map to be empty, not merely expired:
	// expiry is the reaper's job, and it runs Cleanup first.
	r := NewRoom()
	r.Join("sid-1", time.Now().Add(-time.Hour), testTTL)
	assert.False(t, r.tryEvict())
}

func TestRoom_SIDTypeSafety(t *testing.T) {
	r := NewRoom()
	now := time.Now()
	sid := types.SID("abc")

	r.Join(sid, now, testTTL)
	assert.Equal(t, 1, r.ActiveCount(now, testTTL))
}
