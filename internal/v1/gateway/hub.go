// Package gateway implements the WebSocket surface of the presence gateway:
// room sessions (join, heartbeat loop, count/event broadcast, leave), web
// sessions (global visitor feed only), and the background reaper and
// online-stats flusher.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/visitly/presence-gateway/internal/v1/auth"
	"github.com/visitly/presence-gateway/internal/v1/bus"
	"github.com/visitly/presence-gateway/internal/v1/logging"
	"github.com/visitly/presence-gateway/internal/v1/meta"
	"github.com/visitly/presence-gateway/internal/v1/metrics"
	"github.com/visitly/presence-gateway/internal/v1/presence"
	"github.com/visitly/presence-gateway/internal/v1/ratelimit"
	"github.com/visitly/presence-gateway/internal/v1/types"
)

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Hub serves as the central coordinator for all presence connections. It owns
// the room registry, the metadata store, the global online latch, and the
// process-wide visitor event feed.
type Hub struct {
	rooms   *presence.Registry
	meta    meta.Store
	online  *bus.Latch       // Global unique-session count latch
	global  *bus.Broadcaster // Process-wide visitor event feed for web sessions
	policy  *auth.OriginPolicy
	limiter *ratelimit.RateLimiter // Optional; nil disables rate limiting

	ttl          time.Duration
	pingInterval time.Duration // 0 disables protocol-level pings
}

// NewHub creates a Hub and configures it with its dependencies.
func NewHub(store meta.Store, policy *auth.OriginPolicy, limiter *ratelimit.RateLimiter, ttl, pingInterval time.Duration) *Hub {
	return &Hub{
		rooms:        presence.NewRegistry(),
		meta:         store,
		online:       bus.NewLatch(0),
		global:       bus.NewBroadcaster(bus.DefaultBufferSize),
		policy:       policy,
		limiter:      limiter,
		ttl:          ttl,
		pingInterval: pingInterval,
	}
}

// Rooms exposes the room registry for the HTTP read surface.
func (h *Hub) Rooms() *presence.Registry {
	return h.rooms
}

// Meta exposes the metadata store for the HTTP read surface.
func (h *Hub) Meta() meta.Store {
	return h.meta
}

// Online exposes the global unique-session count latch.
func (h *Hub) Online() *bus.Latch {
	return h.online
}

// Global exposes the process-wide visitor event feed.
func (h *Hub) Global() *bus.Broadcaster {
	return h.global
}

// TTL returns the room presence TTL.
func (h *Hub) TTL() time.Duration {
	return h.ttl
}

// ServeWs handles an upgrade on the room endpoint: validates the room name
// and origin, upgrades, and runs the room session to completion.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.limiter != nil && !h.limiter.CheckWebSocket(c) {
		return // Response already written by CheckWebSocket
	}

	roomName := types.RoomName(c.Query("room"))
	if !roomName.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room"})
		return
	}

	if !h.policy.Allow(c.GetHeader("Origin")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	conn, err := h.upgrade(c)
	if err != nil {
		return
	}

	h.runRoomSession(conn, roomName, extractSessionID(c))
}

// ServeWsWeb handles an upgrade on the web endpoint: no room, only the
// global visitor feed.
func (h *Hub) ServeWsWeb(c *gin.Context) {
	if h.limiter != nil && !h.limiter.CheckWebSocket(c) {
		return
	}

	if !h.policy.Allow(c.GetHeader("Origin")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	conn, err := h.upgrade(c)
	if err != nil {
		return
	}

	h.runWebSession(conn, extractSessionID(c))
}

// upgrade performs the WebSocket upgrade. CheckOrigin re-applies the origin
// policy so the handshake can never admit what the handler rejected.
func (h *Hub) upgrade(c *gin.Context) (wsConnection, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return h.policy.Allow(r.Header.Get("Origin"))
		},
		WriteBufferPool: &sync.Pool{},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to upgrade connection", zap.Error(err))
		return nil, err
	}
	return conn, nil
}

// extractSessionID resolves the effective visitor session id: the
// x-socket-session-id header wins, then the socket_session_id query
// parameter. Empty means the caller falls back to the connection identity.
func extractSessionID(c *gin.Context) string {
	if v := c.GetHeader("x-socket-session-id"); v != "" {
		return v
	}
	return c.Query("socket_session_id")
}

// publishOnline recomputes the global unique-session count and publishes it
// on the online latch. Returns the new count.
func (h *Hub) publishOnline(ctx context.Context) int {
	count := h.meta.UniqueSessionCount(ctx)
	h.online.Publish(count)
	metrics.OnlineSessions.Set(float64(count))
	return count
}
