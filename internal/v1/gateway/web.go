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
	"github.com/visitly/presence-gateway/internal/v1/types"
)

// runWebSession drives one web connection: no room membership, only the
// global visitor count and the process-wide event feed.
func (h *Hub) runWebSession(conn wsConnection, sessionID string) {
	sid := types.SID(uuid.New().String())
	nowMs := time.Now().UnixMilli()
	if sessionID == "" {
		sessionID = string(sid)
	}
	// The offline announcement carries the session id the visitor connected
	// with, even if an updateSid rebinds the record later.
	connectedSessionID := sessionID

	ctx := context.Background()
	h.meta.UpsertIdentity(ctx, string(sid), sessionID, nowMs)
	online := h.publishOnline(ctx)

	metrics.IncConnection()
	logging.Info(ctx, "web session started",
		zap.String("sid", string(sid)), zap.Int("online", online))

	defer h.closeWebSession(conn, sid, connectedSessionID)

	greeting := events.Format(events.GatewayConnect, "connected")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(greeting)); err != nil {
		return
	}

	globalCh, cancelGlobal := h.global.Subscribe()
	defer cancelGlobal()

	inboundDone := make(chan struct{})
	go h.webReadPump(conn, sid, inboundDone)

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
		case <-h.online.Changed():
			frame := events.Format(events.VisitorOnline, events.VisitorOnlinePayload{
				Online:    h.online.Get(),
				Timestamp: time.Now().UnixMilli(),
			})
			metrics.EventsPublished.WithLabelValues(string(events.VisitorOnline)).Inc()
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		case msg, ok := <-globalCh:
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

// webReadPump consumes inbound frames on a web session. Only updateSid is
// recognized; everything else is ignored.
func (h *Hub) webReadPump(conn wsConnection, sid types.SID, done chan struct{}) {
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
			continue
		}

		if in.Type == frameUpdateSid && in.SessionID != "" {
			ctx := context.Background()
			h.meta.SetSessionID(ctx, string(sid), in.SessionID, time.Now().UnixMilli())
			h.publishOnline(ctx)
		}
	}
}

// closeWebSession removes the record, recomputes the global count, and
// announces the departure on the global feed with the post-removal count.
func (h *Hub) closeWebSession(conn wsConnection, sid types.SID, sessionID string) {
	_ = conn.Close()

	ctx := context.Background()
	h.meta.Clear(ctx, string(sid))
	online := h.publishOnline(ctx)

	h.global.Publish(events.Format(events.VisitorOffline, events.VisitorOfflinePayload{
		Online:    online,
		Timestamp: time.Now().UnixMilli(),
		SessionID: sessionID,
	}))
	metrics.EventsPublished.WithLabelValues(string(events.VisitorOffline)).Inc()

	metrics.DecConnection()
	logging.Info(ctx, "web session closed",
		zap.String("sid", string(sid)), zap.Int("online", online))
}
