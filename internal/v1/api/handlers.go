// Package api implements the HTTP read surface over the presence state: top
// rooms, per-room presence listings, the presence-update hook, and online
// statistics.
package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/visitly/presence-gateway/internal/v1/events"
	"github.com/visitly/presence-gateway/internal/v1/gateway"
	"github.com/visitly/presence-gateway/internal/v1/logging"
	"github.com/visitly/presence-gateway/internal/v1/metrics"
	"github.com/visitly/presence-gateway/internal/v1/types"
)

const (
	defaultTopRoomLimit = 10
	maxTopRoomLimit     = 100
)

// Handler serves the read endpoints backed by the hub's live state.
type Handler struct {
	hub *gateway.Hub
}

// NewHandler creates the read-surface handler.
func NewHandler(hub *gateway.Hub) *Handler {
	return &Handler{hub: hub}
}

// TopRoom is one entry in the active-rooms ranking. Path and Title default to
// the room name; richer page metadata is a client-side concern.
type TopRoom struct {
	Room  string `json:"room"`
	Count int    `json:"count"`
	Path  string `json:"path"`
	Title string `json:"title"`
}

// ActiveRooms handles GET /v1/rooms/active. Rooms are ranked by effective
// count descending, ties broken by name ascending.
func (h *Handler) ActiveRooms(c *gin.Context) {
	limit := defaultTopRoomLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxTopRoomLimit {
		limit = maxTopRoomLimit
	}

	counts := h.hub.Rooms().SnapshotCounts(time.Now(), h.hub.TTL())
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Name < counts[j].Name
	})
	if len(counts) > limit {
		counts = counts[:limit]
	}

	out := make([]TopRoom, 0, len(counts))
	for _, rc := range counts {
		out = append(out, TopRoom{
			Room:  string(rc.Name),
			Count: rc.Count,
			Path:  string(rc.Name),
			Title: string(rc.Name),
		})
	}
	c.JSON(http.StatusOK, out)
}

// ActivityRoomsResponse lists every live room and its count.
type ActivityRoomsResponse struct {
	Rooms     []string       `json:"rooms"`
	RoomCount map[string]int `json:"room_count"`
}

// ActivityRooms handles GET /v1/activity/rooms. Only rooms with at least one
// effective member appear.
func (h *Handler) ActivityRooms(c *gin.Context) {
	counts := h.hub.Rooms().SnapshotCounts(time.Now(), h.hub.TTL())
	sort.Slice(counts, func(i, j int) bool { return counts[i].Name < counts[j].Name })

	resp := ActivityRoomsResponse{
		Rooms:     make([]string, 0, len(counts)),
		RoomCount: make(map[string]int, len(counts)),
	}
	for _, rc := range counts {
		resp.Rooms = append(resp.Rooms, string(rc.Name))
		resp.RoomCount[string(rc.Name)] = rc.Count
	}
	c.JSON(http.StatusOK, resp)
}

// PresenceView is one visitor's presence in a room.
type PresenceView struct {
	Identity  string `json:"identity"`
	JoinedAt  *int64 `json:"joined_at,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// RoomPresence handles GET /v1/activity/presence?room_name=...
func (h *Handler) RoomPresence(c *gin.Context) {
	roomName := types.RoomName(c.Query("room_name"))
	if !roomName.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room_name"})
		return
	}

	records := h.hub.Meta().RoomPresence(c.Request.Context(), string(roomName))
	out := make([]PresenceView, 0, len(records))
	for _, rec := range records {
		view := PresenceView{Identity: rec.Identity, UpdatedAt: rec.UpdatedAtMs}
		if joined, ok := rec.RoomJoinedAt[string(roomName)]; ok {
			view.JoinedAt = &joined
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, out)
}

// presenceUpdateRequest is the body of the presence-update hook. The request
// body is snake_case; the event fanned out to subscribers stays camelCase.
type presenceUpdateRequest struct {
	RoomName    string  `json:"room_name" binding:"required"`
	DisplayName *string `json:"display_name"`
	Position    *int    `json:"position"`
}

// UpdatePresence handles POST /v1/activity/presence/update. The caller is
// identified by the x-socket-session-id header; its records are touched and
// an ACTIVITY_UPDATE_PRESENCE event fans out on the room bus.
func (h *Handler) UpdatePresence(c *gin.Context) {
	sessionID := c.GetHeader("x-socket-session-id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing x-socket-session-id"})
		return
	}

	var req presenceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	roomName := types.RoomName(req.RoomName)
	if !roomName.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room_name"})
		return
	}

	ctx := c.Request.Context()
	nowMs := time.Now().UnixMilli()
	h.hub.Meta().TouchBySession(ctx, sessionID, nowMs)

	identity := sessionID
	if rec, ok := h.hub.Meta().FindBySession(ctx, sessionID); ok {
		identity = rec.Identity
	}

	payload := events.UpdatePresencePayload{
		Identity:    identity,
		RoomName:    string(roomName),
		UpdatedAt:   nowMs,
		DisplayName: req.DisplayName,
		Position:    req.Position,
	}
	room := h.hub.Rooms().GetOrCreate(roomName)
	room.PublishEvent(events.Format(events.ActivityUpdatePresence, payload))
	metrics.EventsPublished.WithLabelValues(string(events.ActivityUpdatePresence)).Inc()

	logging.Info(ctx, "presence update published",
		zap.String("room", string(roomName)), zap.String("identity", identity))
	c.JSON(http.StatusOK, "ok")
}

// OnlineTodayResponse carries today's online statistics.
type OnlineTodayResponse struct {
	Date    string `json:"date"`
	Max     int    `json:"max"`
	Total   int    `json:"total"`
	Backend string `json:"backend"`
}

// OnlineToday handles GET /v1/metrics/online/today. Backends without stats
// persistence fall back to the live unique-session count for max.
func (h *Handler) OnlineToday(c *gin.Context) {
	ctx := c.Request.Context()
	resp := OnlineTodayResponse{Date: time.Now().Format("2006-01-02")}

	if max, total, ok := h.hub.Meta().OnlineStatsToday(ctx); ok {
		resp.Max = max
		resp.Total = total
		resp.Backend = "redis"
	} else {
		resp.Max = h.hub.Meta().UniqueSessionCount(ctx)
		resp.Backend = "memory"
	}
	c.JSON(http.StatusOK, resp)
}

// OnlineNow handles GET /v1/metrics/online: the latest published global count.
func (h *Handler) OnlineNow(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.hub.Online().Get()})
}
