package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/visitly/presence-gateway/internal/v1/auth"
	"github.com/visitly/presence-gateway/internal/v1/meta"
)

func newTestHub(origins string, ttl time.Duration) *Hub {
	return NewHub(meta.NewMemoryStore(), auth.NewOriginPolicy(origins), nil, ttl, 0)
}

func TestNewHub(t *testing.T) {
	hub := newTestHub("", 30*time.Second)

	assert.NotNil(t, hub.Rooms())
	assert.NotNil(t, hub.Meta())
	assert.NotNil(t, hub.Online())
	assert.NotNil(t, hub.Global())
	assert.Equal(t, 30*time.Second, hub.TTL())
	assert.Equal(t, 0, hub.Online().Get())
}

func TestServeWs_InvalidRoomName(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := newTestHub("", 30*time.Second)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/ws?room=bad%20room", nil)

	hub.ServeWs(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServeWs_MissingRoomName(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := newTestHub("", 30*time.Second)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/ws", nil)

	hub.ServeWs(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServeWs_ForbiddenOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := newTestHub("https://example.com", 30*time.Second)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/ws?room=lobby", nil)
	c.Request.Header.Set("Origin", "https://evil.com")

	hub.ServeWs(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServeWsWeb_ForbiddenOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := newTestHub("https://example.com", 30*time.Second)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/web", nil)
	c.Request.Header.Set("Origin", "https://evil.com")

	hub.ServeWsWeb(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExtractSessionID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header wins", "sess-h", "sess-q", "sess-h"},
		{"query fallback", "", "sess-q", "sess-q"},
		{"neither", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			url := "/ws?room=lobby"
			if tt.query != "" {
				url += "&socket_session_id=" + tt.query
			}
			c.Request, _ = http.NewRequest("GET", url, nil)
			if tt.header != "" {
				c.Request.Header.Set("x-socket-session-id", tt.header)
			}
			assert.Equal(t, tt.want, extractSessionID(c))
		})
	}
}

func TestPublishOnline(t *testing.T) {
	hub := newTestHub("", 30*time.Second)
	ctx := context.Background()

	hub.Meta().UpsertIdentity(ctx, "sid-1", "sess-a", 1000)
	hub.Meta().UpsertIdentity(ctx, "sid-2", "sess-a", 1000)

	count := hub.publishOnline(ctx)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, hub.Online().Get())
}
