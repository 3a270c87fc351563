// Package server provides the HTTP server for the retailchain catalog API.
package server

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/agentstation/retailchain/cmd/application"
	"github.com/agentstation/retailchain/internal/server/idempotency"
	"github.com/agentstation/retailchain/internal/server/middleware"
	"github.com/agentstation/retailchain/internal/server/sse"
	ws "github.com/agentstation/retailchain/internal/server/websocket"
	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/errors"
)

// closer is satisfied by the limiters that own background resources.
type closer interface {
	Close()
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	app            application.Application
	service        *catalog.Service
	idempotency    *idempotency.Cache
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	limiter        middleware.Limiter
	trustedProxies middleware.TrustedProxies
	redis          *redis.Client
	logger         *zerolog.Logger
	config         Config
	handler        http.Handler
	startTime      time.Time
}

// New creates a new server instance with the given configuration. The
// catalog store is opened here so a bad database URL fails before the
// listener starts.
func New(ctx context.Context, app application.Application, cfg Config) (*Server, error) {
	logger := app.Logger()

	logger.Debug().Msg("Creating new server instance")

	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = idempotency.DefaultTTL
	}
	cfg.PathPrefix = normalizePrefix(cfg.PathPrefix)
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "X-API-Key"
	}

	service, err := app.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	n := app.Notifier()
	if n == nil {
		return nil, errors.NewConfigError("server", "application has no notifier", nil)
	}

	s := &Server{
		app:            app,
		service:        service,
		idempotency:    idempotency.New(cfg.IdempotencyTTL, cfg.IdempotencyTTL/2),
		wsHub:          ws.NewHub(n, logger, originChecker(cfg)),
		sseBroadcaster: sse.NewBroadcaster(n, logger),
		logger:         logger,
		config:         cfg,
		startTime:      time.Now(),
	}

	if cfg.RateLimit > 0 {
		trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
		if err != nil {
			return nil, errors.NewConfigError("server", "invalid trusted proxies", err)
		}
		s.trustedProxies = trusted
		if err := s.setupLimiter(); err != nil {
			return nil, err
		}
	}

	s.handler = s.setupRouter()

	logger.Debug().
		Str("prefix", cfg.PathPrefix).
		Bool("cors", cfg.CORSEnabled).
		Bool("auth", cfg.AuthEnabled).
		Int("rate_limit", cfg.RateLimit).
		Bool("redis", s.redis != nil).
		Msg("Server instance created successfully")
	return s, nil
}

// normalizePrefix returns prefix with one leading slash and no trailing
// slash; "" and "/" mount the API at the root.
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}

// setupLimiter picks the shared Redis window when a URL is configured and
// the per-process limiter otherwise.
func (s *Server) setupLimiter() error {
	if s.config.RedisURL == "" {
		s.limiter = middleware.NewRateLimiter(s.config.RateLimit)
		return nil
	}

	opts, err := redis.ParseURL(s.config.RedisURL)
	if err != nil {
		return errors.NewConfigError("server", "invalid redis url", err)
	}
	s.redis = redis.NewClient(opts)
	s.limiter = middleware.NewRedisRateLimiter(s.redis, s.config.RateLimit, time.Minute, "")
	return nil
}

// originChecker returns the WebSocket origin policy matching the CORS
// settings. Requests without an Origin header and same-host requests are
// always accepted.
func originChecker(cfg Config) func(*http.Request) bool {
	if !cfg.CORSEnabled || slices.Contains(cfg.CORSOrigins, "*") {
		return nil
	}
	allowed := slices.Clone(cfg.CORSOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Shutdown disconnects streaming clients and releases the limiter. It must
// run before http.Server.Shutdown, which otherwise waits on open streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server background services")

	s.wsHub.Close()
	s.sseBroadcaster.Close()

	if c, ok := s.limiter.(closer); ok {
		c.Close()
	}

	var err error
	if s.redis != nil {
		err = s.redis.Close()
	}

	select {
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	default:
	}

	s.logger.Info().Msg("Background services shut down successfully")
	return err
}

// Idempotency returns the idempotency-key cache.
func (s *Server) Idempotency() *idempotency.Cache {
	return s.idempotency
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *ws.Hub {
	return s.wsHub
}

// SSEBroadcaster returns the SSE broadcaster.
func (s *Server) SSEBroadcaster() *sse.Broadcaster {
	return s.sseBroadcaster
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
