// Package serve provides the HTTP server command for the retailchain CLI.
package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentstation/retailchain/cmd/application"
	"github.com/agentstation/retailchain/internal/relay"
	"github.com/agentstation/retailchain/internal/server"
	"github.com/agentstation/retailchain/internal/server/idempotency"
	"github.com/agentstation/retailchain/internal/server/middleware"
	"github.com/agentstation/retailchain/internal/telemetry"
)

// Options collects everything the serve command needs beyond server.Config.
type Options struct {
	Server    server.Config
	Kafka     relay.KafkaConfig
	Telemetry telemetry.Config
}

// NewCommand creates the serve command using app context.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Start the catalog REST API with WebSocket and SSE change feeds",
		Long: `Start the retailchain HTTP server.

Features:
  - RESTful product endpoints ({prefix}/products)
  - WebSocket change feed (/ws and {prefix}/updates/ws)
  - Server-Sent Events change feed ({prefix}/updates/stream)
  - Idempotency-Key support on product creation
  - Rate limiting per client, in memory or shared through Redis
  - API key authentication (optional)
  - CORS for the web frontend
  - Optional Kafka relay of change events
  - OpenTelemetry tracing (OTLP or stdout)
  - Graceful shutdown on SIGINT/SIGTERM`,
		Example: `  # Start on default port 8080 with an in-memory catalog
  retailchain serve

  # Persist to SQLite
  retailchain serve --database-url sqlite:catalog.db

  # Postgres, shared rate limit, and a Kafka relay
  retailchain serve --database-url postgres://app:secret@db/retail \
    --redis-url redis://cache:6379/0 --kafka-brokers kafka:9092`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, args, app)
		},
	}

	defaults := server.DefaultConfig()

	// Server configuration flags
	cmd.Flags().Int("port", defaults.Port, "Server port (env HTTP_PORT)")
	cmd.Flags().String("host", defaults.Host, "Bind address (env HTTP_HOST)")
	cmd.Flags().String("prefix", defaults.PathPrefix, "API path prefix")

	// CORS flags
	cmd.Flags().Bool("cors", defaults.CORSEnabled, "Enable CORS")
	cmd.Flags().StringSlice("cors-origins", defaults.CORSOrigins, "Allowed CORS origins (comma-separated, * for any)")

	// Authentication flags
	cmd.Flags().Bool("auth", false, "Enable API key authentication")
	cmd.Flags().String("auth-header", defaults.AuthHeader, "Authentication header name")
	cmd.Flags().String("api-key", "", "API key clients must present (env API_KEY)")

	// Rate limiting
	cmd.Flags().Int("rate-limit", defaults.RateLimit, "Requests per minute per client (0 to disable)")
	cmd.Flags().String("redis-url", "", "Redis URL for a rate limit shared across instances (env REDIS_URL)")
	cmd.Flags().StringSlice("trusted-proxies", nil, "Proxy addresses or CIDRs whose X-Forwarded-For identifies the client")

	// Change feed
	cmd.Flags().Duration("idempotency-ttl", defaults.IdempotencyTTL, "How long an Idempotency-Key is remembered")
	cmd.Flags().String("kafka-brokers", "", "Comma-separated Kafka brokers to relay change events to (env KAFKA_BROKERS)")
	cmd.Flags().String("kafka-topic", relay.DefaultTopic, "Kafka topic for change events")

	// Timeout flags
	cmd.Flags().Duration("read-timeout", defaults.ReadTimeout, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", defaults.WriteTimeout, "HTTP write timeout")
	cmd.Flags().Duration("idle-timeout", defaults.IdleTimeout, "HTTP idle timeout")

	// Tracing
	cmd.Flags().String("otlp-endpoint", "", "OTLP gRPC collector host:port (env OTEL_EXPORTER_OTLP_ENDPOINT)")
	cmd.Flags().Bool("trace-stdout", false, "Write spans to stderr")

	return cmd
}

// runServer starts the API server.
func runServer(cmd *cobra.Command, _ []string, app application.Application) error {
	opts, err := parseOptions(cmd)
	if err != nil {
		return err
	}
	cfg := opts.Server
	logger := app.Logger()

	opts.Telemetry.ServiceVersion = app.Version()
	shutdownTracing, err := telemetry.Setup(cmd.Context(), opts.Telemetry)
	if err != nil {
		return fmt.Errorf("configuring tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn().Err(err).Msg("Flushing traces failed")
		}
	}()

	logger.Info().
		Int("port", cfg.Port).
		Str("host", cfg.Host).
		Str("prefix", cfg.PathPrefix).
		Bool("cors", cfg.CORSEnabled).
		Bool("auth", cfg.AuthEnabled).
		Int("rate_limit", cfg.RateLimit).
		Bool("tracing", opts.Telemetry.Enabled()).
		Msg("Starting API server")

	srv, err := server.New(cmd.Context(), app, cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	relayDone := make(chan struct{})
	if opts.Kafka.Brokers != "" {
		k, err := relay.NewKafka(app.Notifier(), opts.Kafka, logger)
		if err != nil {
			return err
		}
		go func() {
			defer close(relayDone)
			_ = k.Run(relayCtx)
		}()
	} else {
		close(relayDone)
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	err = startWithGracefulShutdown(cmd.Context(), httpServer, srv, logger)

	stopRelay()
	<-relayDone
	return err
}

// parseOptions parses command flags into server, relay, and tracing
// configuration. A flag given on the command line wins; otherwise the
// environment (or config file) value is used when present.
func parseOptions(cmd *cobra.Command) (Options, error) {
	port := mustGetInt(cmd, "port")
	if !cmd.Flags().Changed("port") {
		if env := viper.GetString("http_port"); env != "" {
			p, err := parsePort(env)
			if err != nil {
				return Options{}, err
			}
			port = p
		}
	}
	if port < 1 || port > 65535 {
		return Options{}, fmt.Errorf("port out of range: %d", port)
	}

	cfg := server.Config{
		Host:           flagOrEnv(cmd, "host", "http_host"),
		Port:           port,
		PathPrefix:     mustGetString(cmd, "prefix"),
		CORSEnabled:    mustGetBool(cmd, "cors"),
		CORSOrigins:    mustGetStringSlice(cmd, "cors-origins"),
		AuthEnabled:    mustGetBool(cmd, "auth"),
		AuthHeader:     mustGetString(cmd, "auth-header"),
		APIKey:         flagOrEnv(cmd, "api-key", "api_key"),
		RateLimit:      mustGetInt(cmd, "rate-limit"),
		RedisURL:       flagOrEnv(cmd, "redis-url", "redis_url"),
		TrustedProxies: mustGetStringSlice(cmd, "trusted-proxies"),
		IdempotencyTTL: mustGetDuration(cmd, "idempotency-ttl"),
		ReadTimeout:    mustGetDuration(cmd, "read-timeout"),
		WriteTimeout:   mustGetDuration(cmd, "write-timeout"),
		IdleTimeout:    mustGetDuration(cmd, "idle-timeout"),
	}
	if cfg.AuthEnabled && cfg.APIKey == "" {
		return Options{}, fmt.Errorf("--auth requires --api-key or API_KEY")
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = idempotency.DefaultTTL
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{middleware.DefaultCORSOrigin}
	}

	return Options{
		Server: cfg,
		Kafka: relay.KafkaConfig{
			Brokers: flagOrEnv(cmd, "kafka-brokers", "kafka_brokers"),
			Topic:   mustGetString(cmd, "kafka-topic"),
		},
		Telemetry: telemetry.Config{
			ServiceName:  "retailchain",
			OTLPEndpoint: flagOrEnv(cmd, "otlp-endpoint", "otel_exporter_otlp_endpoint"),
			Stdout:       mustGetBool(cmd, "trace-stdout"),
		},
	}, nil
}

// flagOrEnv returns the flag value when it was set explicitly, then the
// viper key, then the flag default.
func flagOrEnv(cmd *cobra.Command, flag, key string) string {
	val := mustGetString(cmd, flag)
	if cmd.Flags().Changed(flag) {
		return val
	}
	if env := viper.GetString(key); env != "" {
		return env
	}
	return val
}

// parsePort safely parses a port string to integer.
func parsePort(portStr string) (int, error) {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}

// startWithGracefulShutdown starts the HTTP server with graceful shutdown.
// The context is used to detect shutdown signals - when cancelled, server will shutdown gracefully.
func startWithGracefulShutdown(ctx context.Context, httpServer *http.Server, srv *server.Server, logger *zerolog.Logger) error {
	serverErr := make(chan error, 1)

	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("service", "API").
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received via context")

		// Use Background() since the parent context is already cancelled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Streaming handlers only return once their hub or broadcaster is
		// closed, so that happens before the listener drains.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Background services shutdown had issues")
		}

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("Server stopped gracefully")
		return nil
	}
}

// mustGetInt retrieves an integer flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetStringSlice retrieves a string slice flag value or panics if the flag doesn't exist.
func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetDuration retrieves a duration flag value or panics if the flag doesn't exist.
func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
