package server

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentstation/retailchain/internal/server/handlers"
	"github.com/agentstation/retailchain/internal/server/middleware"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(handlers.Deps{
		Service:        s.service,
		Notifier:       s.app.Notifier(),
		Ready:          s.app.Ready,
		Idempotency:    s.idempotency,
		WSHub:          s.wsHub,
		SSEBroadcaster: s.sseBroadcaster,
		PathPrefix:     s.config.PathPrefix,
		Version:        s.app.Version(),
		Logger:         s.logger,
	})

	s.registerRoutes(mux, h)

	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	// Favicon handler (return 204 No Content to avoid 404 logs)
	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Public health endpoints (no auth required)
	mux.HandleFunc("GET /health", h.HandleHealth)
	if prefix != "" {
		mux.HandleFunc("GET "+prefix+"/health", h.HandleHealth)
	}
	mux.HandleFunc("GET "+prefix+"/ready", h.HandleReady)

	// Products
	mux.HandleFunc("GET "+prefix+"/products", h.HandleListProducts)
	mux.HandleFunc("POST "+prefix+"/products", h.HandleCreateProduct)
	mux.HandleFunc("GET "+prefix+"/products/{id}", h.HandleGetProduct)
	mux.HandleFunc("PUT "+prefix+"/products/{id}", h.HandleUpdateProduct)
	mux.HandleFunc("DELETE "+prefix+"/products/{id}", h.HandleDeleteProduct)

	// Real-time endpoints
	mux.HandleFunc("GET /ws", h.HandleWebSocket)
	mux.HandleFunc("GET "+prefix+"/updates/ws", h.HandleWebSocket)
	mux.HandleFunc("GET "+prefix+"/updates/stream", h.HandleSSE)
}

// applyMiddleware wraps handler with middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	// Rate limiting (if enabled)
	if s.limiter != nil {
		handler = middleware.RateLimit(s.limiter, s.logger, s.trustedProxies)(handler)
	}

	// Authentication (if enabled)
	if cfg.AuthEnabled {
		authConfig := middleware.DefaultAuthConfig()
		authConfig.Enabled = true
		authConfig.APIKey = cfg.APIKey
		authConfig.HeaderName = cfg.AuthHeader
		authConfig.PublicPaths = append(authConfig.PublicPaths, cfg.PathPrefix+"/health", cfg.PathPrefix+"/ready")
		handler = middleware.Auth(authConfig, s.logger)(handler)
	}

	// CORS (if enabled)
	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
		}
		corsConfig.AllowedHeaders = append(corsConfig.AllowedHeaders, cfg.AuthHeader)
		handler = middleware.CORS(corsConfig)(handler)
	}

	// Logging, request ids and recovery (always enabled)
	handler = middleware.Logger(s.logger)(handler)
	handler = middleware.RequestID()(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return otelhttp.NewHandler(handler, "retailchain",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
