package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the presence gateway.
//
// Naming convention: namespace_subsystem_name
// - namespace: presence_gateway (application-level grouping)
// - subsystem: websocket, room, visitor (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, online visitors)
// - Counter: Cumulative events (events published, rate-limit rejections)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections (Gauge - current state)
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence_gateway",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of registered rooms (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence_gateway",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of registered rooms",
	})

	// RoomParticipants tracks the effective member count per room (GaugeVec with room label)
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "presence_gateway",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Effective member count per room",
	}, []string{"room"})

	// OnlineSessions tracks the global unique visitor session count (Gauge - current state)
	OnlineSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence_gateway",
		Subsystem: "visitor",
		Name:      "online_sessions",
		Help:      "Current number of unique visitor sessions online",
	})

	// EventsPublished tracks business events published to room and global buses (CounterVec - cumulative)
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence_gateway",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total business events published",
	}, []string{"event_type"})

	// RateLimitExceeded tracks rejected requests per endpoint (CounterVec - cumulative)
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence_gateway",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total requests rejected by rate limiting",
	}, []string{"endpoint", "limit_type"})

	// RateLimitRequests tracks requests passing through rate limiting (CounterVec - cumulative)
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence_gateway",
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Total requests checked by rate limiting",
	}, []string{"endpoint"})

	// CircuitBreakerState tracks breaker state per backend (0 closed, 1 open, 2 half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "presence_gateway",
		Subsystem: "backend",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per backend (0=closed, 1=open, 2=half-open)",
	}, []string{"backend"})

	// CircuitBreakerFailures tracks operations rejected by an open breaker (CounterVec - cumulative)
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence_gateway",
		Subsystem: "backend",
		Name:      "circuit_breaker_failures_total",
		Help:      "Total operations rejected by an open circuit breaker",
	}, []string{"backend"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
