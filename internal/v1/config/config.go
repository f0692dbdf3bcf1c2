package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/visitly/presence-gateway/internal/v1/logging"
)

// Config holds validated environment configuration
type Config struct {
	// Core gateway settings
	Port         string
	PresenceTTL  time.Duration
	PingInterval time.Duration // 0 disables protocol-level pings

	// Origin whitelist, comma-separated. Empty admits everything.
	AllowedOrigins string

	// Redis backend selection. Empty selects the in-memory meta store.
	RedisURL string

	// Optional variables with defaults
	GoEnv    string
	LogLevel string

	// Rate limits (M = Minute, H = Hour)
	RateLimitWsIP string
	RateLimitAPI  string

	// Tracing
	TracingEnabled    bool
	OtelCollectorAddr string
}

// ValidateEnv validates all environment variables and returns a Config object.
// Returns an error if any variable is present but invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Optional: PORT (defaults to 8080)
	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Optional: PRESENCE_TTL in seconds (defaults to 30)
	ttlSecs, err := readSeconds("PRESENCE_TTL", 30)
	if err != nil {
		errors = append(errors, err.Error())
	} else if ttlSecs < 1 {
		errors = append(errors, fmt.Sprintf("PRESENCE_TTL must be at least 1 second (got %d)", ttlSecs))
	}
	cfg.PresenceTTL = time.Duration(ttlSecs) * time.Second

	// Optional: PING_INTERVAL in seconds (defaults to 0 = disabled)
	pingSecs, err := readSeconds("PING_INTERVAL", 0)
	if err != nil {
		errors = append(errors, err.Error())
	} else if pingSecs < 0 {
		errors = append(errors, fmt.Sprintf("PING_INTERVAL must not be negative (got %d)", pingSecs))
	}
	cfg.PingInterval = time.Duration(pingSecs) * time.Second

	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL != "" && !strings.HasPrefix(cfg.RedisURL, "redis://") && !strings.HasPrefix(cfg.RedisURL, "rediss://") {
		errors = append(errors, fmt.Sprintf("REDIS_URL must start with redis:// or rediss:// (got '%s')", cfg.RedisURL))
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Rate limits
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitAPI = getEnvOrDefault("RATE_LIMIT_API", "300-M")

	// Tracing
	cfg.TracingEnabled = os.Getenv("TRACING_ENABLED") == "true"
	cfg.OtelCollectorAddr = getEnvOrDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// Development reports whether the gateway runs in a development environment.
func (c *Config) Development() bool {
	return c.GoEnv == "development"
}

// readSeconds parses an integer-seconds environment variable.
func readSeconds(key string, def int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer number of seconds (got '%s')", key, raw)
	}
	return v, nil
}

// logValidatedConfig logs the validated configuration
func logValidatedConfig(cfg *Config) {
	allowed := cfg.AllowedOrigins
	if allowed == "" {
		allowed = "<empty>"
	}
	logging.Info(nil, "environment configuration validated",
		zap.String("port", cfg.Port),
		zap.Duration("presence_ttl", cfg.PresenceTTL),
		zap.Duration("ping_interval", cfg.PingInterval),
		zap.String("allowed_origins", allowed),
		zap.Bool("redis_enabled", cfg.RedisURL != ""),
		zap.String("go_env", cfg.GoEnv),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("tracing_enabled", cfg.TracingEnabled),
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}
