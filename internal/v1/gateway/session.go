package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/visitly/presence-gateway/internal/v1/events"
	"github.com/visitly/presence-gateway/internal/v1/logging"
	"github.com/visitly/presence-gateway/internal/v1/metrics"
	"github.com/visitly/presence-gateway/internal/v1/presence"
	"github.com/visitly/presence-gateway/internal/v1/types"
)

// runRoomSession drives one room connection from admission to close: join,
// hello frame, multiplexed outbound loop, and the closing path. The closing
// path runs via defer regardless of which exit arm fired.
func (h *Hub) runRoomSession(conn wsConnection, roomName types.RoomName, sessionID string) {
	sid := types.SID(uuid.New().String())
	nowMs := time.Now().UnixMilli()
	if sessionID == "" {
		// Every unidentified connection is its own visitor until it issues
		// an updateSid.
		sessionID = string(sid)
	}

	ctx := context.Background()
	h.meta.UpsertIdentity(ctx, string(sid), sessionID, nowMs)
	h.meta.JoinRoom(ctx, string(sid), string(roomName), nowMs)

	// A room evicted by the reaper between lookup and join fails the join;
	// re-fetch until we land on a live instance.
	var room *presence.Room
	var count int
	for {
		room = h.rooms.GetOrCreate(roomName)
		var ok bool
		if count, ok = room.Join(sid, time.Now(), h.ttl); ok {
			break
		}
	}

	metrics.IncConnection()
	logging.Info(ctx, "room session started",
		zap.String("sid", string(sid)), zap.String("room", string(roomName)), zap.Int("count", count))

	// Join event is published after membership is updated and before this
	// session observes its own count subscription.
	h.publishRoomEvent(room, events.ActivityJoinPresence, events.JoinPresencePayload{
		Identity: string(sid),
		RoomName: string(roomName),
		JoinedAt: nowMs,
	})
	h.publishOnline(ctx)

	defer h.closeRoomSession(conn, room, roomName, sid)

	hello := helloFrame{
		Type:  frameHello,
		SID:   string(sid),
		TTL:   int64(h.ttl / time.Second),
		Count: count,
	}
	if err := writeJSON(conn, hello); err != nil {
		return
	}

	counts := room.SubscribeCounts()
	eventCh, cancelEvents := room.SubscribeEvents()
	defer cancelEvents()

	inboundDone := make(chan struct{})
	go h.roomReadPump(conn, room, sid, inboundDone)

	// A nil ping channel blocks forever, which disables the arm.
	var pingC <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case <-inboundDone:
			return
		case <-counts.Changed():
			if err := writeJSON(conn, syncFrame{Type: frameSync, Count: counts.Get()}); err != nil {
				return
			}
		case msg, ok := <-eventCh:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		case <-pingC:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// roomReadPump consumes inbound frames until the peer closes or errors.
// Heartbeats and session-id updates take effect directly from here; outbound
// frames stay on the session goroutine so writes are never interleaved.
func (h *Hub) roomReadPump(conn wsConnection, room *presence.Room, sid types.SID, done chan struct{}) {
	defer close(done)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			// Malformed frames are ignored; the connection continues.
			continue
		}

		switch in.Type {
		case frameHeartbeat:
			room.Heartbeat(sid, time.Now())
		case frameUpdateSid:
			if in.SessionID != "" {
				ctx := context.Background()
				h.meta.SetSessionID(ctx, string(sid), in.SessionID, time.Now().UnixMilli())
				h.publishOnline(ctx)
			}
		}
	}
}

// closeRoomSession runs the closing path: leave the room, announce it, drop
// the metadata record, and recompute the global count.
func (h *Hub) closeRoomSession(conn wsConnection, room *presence.Room, roomName types.RoomName, sid types.SID) {
	_ = conn.Close()

	now := time.Now()
	room.Leave(sid, now, h.ttl)

	// Leave event goes out after the member is removed. A cleanup expiring
	// the same member concurrently may also announce; clients tolerate
	// idempotent leaves.
	h.publishRoomEvent(room, events.ActivityLeavePresence, events.LeavePresencePayload{
		Identity: string(sid),
		RoomName: string(roomName),
	})

	ctx := context.Background()
	nowMs := now.UnixMilli()
	h.meta.LeaveRoom(ctx, string(sid), string(roomName), nowMs)
	h.meta.Clear(ctx, string(sid))
	h.publishOnline(ctx)

	metrics.DecConnection()
	logging.Info(ctx, "room session closed",
		zap.String("sid", string(sid)), zap.String("room", string(roomName)))
}

// publishRoomEvent serializes and fans a business event out on the room bus.
func (h *Hub) publishRoomEvent(room *presence.Room, kind events.EventType, payload any) {
	room.PublishEvent(events.Format(kind, payload))
	metrics.EventsPublished.WithLabelValues(string(kind)).Inc()
}
