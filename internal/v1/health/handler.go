package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/visitly/presence-gateway/internal/v1/logging"
)

// Pinger checks connectivity to a metadata backend. The in-memory backend
// has no remote dependency and passes a nil Pinger.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler manages health check endpoints
type Handler struct {
	backend Pinger
}

// NewHandler creates a new health check handler. backend may be nil when the
// gateway runs on the in-memory meta store.
func NewHandler(backend Pinger) *Handler {
	return &Handler{backend: backend}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only if the metadata backend is reachable, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"meta": h.checkBackend(ctx)}

	status := "ready"
	statusCode := http.StatusOK
	if checks["meta"] != "healthy" {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkBackend(ctx context.Context) string {
	// In-memory backend has nothing to check.
	if h.backend == nil {
		return "healthy"
	}
	if err := h.backend.Ping(ctx); err != nil {
		logging.Error(ctx, "meta backend health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}
