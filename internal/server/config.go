package server

import (
	"time"

	"github.com/agentstation/retailchain/internal/server/idempotency"
	"github.com/agentstation/retailchain/internal/server/middleware"
)

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	// API settings
	PathPrefix string

	// CORS settings
	CORSEnabled bool
	CORSOrigins []string

	// Authentication settings
	AuthEnabled bool
	AuthHeader  string
	APIKey      string

	// Rate limiting. RedisURL switches from the per-process limiter to a
	// shared Redis window.
	RateLimit int // Requests per minute per client (0 to disable)
	RedisURL  string

	// Proxies (addresses or CIDRs) whose X-Forwarded-For is used to
	// identify clients. Empty means the peer address is always used.
	TrustedProxies []string

	// Idempotency-Key replay window for product creation
	IdempotencyTTL time.Duration

	// HTTP timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           8080,
		PathPrefix:     "/api",
		CORSEnabled:    true,
		CORSOrigins:    []string{middleware.DefaultCORSOrigin},
		AuthEnabled:    false,
		AuthHeader:     "X-API-Key",
		RateLimit:      100,
		IdempotencyTTL: idempotency.DefaultTTL,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    120 * time.Second,
	}
}
