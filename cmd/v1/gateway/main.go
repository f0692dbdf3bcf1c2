package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/visitly/presence-gateway/internal/v1/api"
	"github.com/visitly/presence-gateway/internal/v1/auth"
	"github.com/visitly/presence-gateway/internal/v1/config"
	"github.com/visitly/presence-gateway/internal/v1/gateway"
	"github.com/visitly/presence-gateway/internal/v1/health"
	"github.com/visitly/presence-gateway/internal/v1/logging"
	"github.com/visitly/presence-gateway/internal/v1/meta"
	"github.com/visitly/presence-gateway/internal/v1/middleware"
	"github.com/visitly/presence-gateway/internal/v1/ratelimit"
	"github.com/visitly/presence-gateway/internal/v1/tracing"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Development()); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()

	if cfg.Development() {
		logging.Info(ctx, "running in development mode")
	}

	// --- Tracing (Optional) ---
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "presence-gateway", cfg.OtelCollectorAddr)
		if err != nil {
			logging.Error(ctx, "failed to initialize tracing, continuing without it", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logging.Error(shutdownCtx, "failed to shut down tracer provider", zap.Error(err))
				}
			}()
			logging.Info(ctx, "tracing initialized", zap.String("collector", cfg.OtelCollectorAddr))
		}
	}

	// --- Meta Store Selection ---
	// REDIS_URL selects the Redis backend; a connection failure is fatal
	// because the operator explicitly asked for it. Empty falls back to the
	// in-process store.
	var store meta.Store
	var redisStore *meta.RedisStore
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisStore, err = meta.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logging.Fatal(ctx, "failed to initialize redis meta store", zap.Error(err))
		}
		store = redisStore
		redisClient = redisStore.Client()
	} else {
		logging.Info(ctx, "using in-memory meta store (single-instance mode)")
		store = meta.NewMemoryStore()
	}

	// --- Rate Limiting ---
	limiter, err := ratelimit.NewRateLimiter(cfg.RateLimitWsIP, cfg.RateLimitAPI, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to initialize rate limiter", zap.Error(err))
	}

	// --- Hub and Background Tasks ---
	policy := auth.NewOriginPolicy(cfg.AllowedOrigins)
	hub := gateway.NewHub(store, policy, limiter, cfg.PresenceTTL, cfg.PingInterval)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	hub.StartReaper(bgCtx)
	hub.StartFlusher(bgCtx)

	// --- Set up Server ---
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Cors
	corsConfig := cors.DefaultConfig()
	if policy.Enforced() {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "x-socket-session-id", middleware.HeaderXCorrelationID)
	router.Use(cors.New(corsConfig))

	// Error handling and request context
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware("presence-gateway"))
	}

	// Routing
	router.GET("/v1/ws", hub.ServeWs)
	router.GET("/v1/ws/web", hub.ServeWsWeb)
	// Short aliases kept for clients predating the versioned paths.
	router.GET("/ws", hub.ServeWsWeb)
	router.GET("/web", hub.ServeWsWeb)

	apiHandler := api.NewHandler(hub)
	v1 := router.Group("/v1", limiter.APIMiddleware())
	{
		v1.GET("/rooms/active", apiHandler.ActiveRooms)
		v1.GET("/activity/rooms", apiHandler.ActivityRooms)
		v1.GET("/activity/presence", apiHandler.RoomPresence)
		v1.POST("/activity/presence/update", apiHandler.UpdatePresence)
		v1.GET("/metrics/online", apiHandler.OnlineNow)
		v1.GET("/metrics/online/today", apiHandler.OnlineToday)
	}

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	var pinger health.Pinger
	if redisStore != nil {
		pinger = redisStore
	}
	healthHandler := health.NewHandler(pinger)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	// Start the server.
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		logging.Info(ctx, "presence gateway starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "failed to run server", zap.Error(err))
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down server...")

	// Stop the reaper and flusher first so no expiry races the drain.
	bgCancel()

	// The context is used to inform the server it has 30 seconds to finish
	// the requests it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "server forced to shutdown", zap.Error(err))
	}

	// Close Redis connection if it was initialized
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			logging.Error(shutdownCtx, "failed to close redis connection", zap.Error(err))
		} else {
			logging.Info(shutdownCtx, "redis connection closed")
		}
	}

	logging.Info(shutdownCtx, "server exiting")
}
