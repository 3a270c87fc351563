// Package app provides the application context and dependency management
// for the retailchain CLI. It centralizes configuration, logging, and the
// lifecycle of the catalog store and notifier.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/agentstation/retailchain/cmd/application"
	"github.com/agentstation/retailchain/internal/store"
	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/errors"
	"github.com/agentstation/retailchain/pkg/notifier"
)

const tracerName = "github.com/agentstation/retailchain/pkg/catalog"

// App represents the retailchain application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// Lazily initialized on first use
	mu       sync.RWMutex
	store    store.Store
	service  *catalog.Service
	notifier *notifier.Notifier
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.NewConfigError("app", "loading config", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// Notifier returns the process-wide notifier, creating it on first use.
func (a *App) Notifier() *notifier.Notifier {
	a.mu.RLock()
	n := a.notifier
	a.mu.RUnlock()
	if n != nil {
		return n
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notifierLocked()
}

func (a *App) notifierLocked() *notifier.Notifier {
	if a.notifier == nil {
		a.notifier = notifier.New(
			notifier.WithBufferSize(a.config.BufferSize),
			notifier.WithLogger(a.logger),
		)
	}
	return a.notifier
}

// Catalog returns the catalog service, opening the configured store on
// first use. This is thread-safe and only one store is ever opened.
func (a *App) Catalog(ctx context.Context) (*catalog.Service, error) {
	a.mu.RLock()
	if a.service != nil {
		svc := a.service
		a.mu.RUnlock()
		return svc, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock
	if a.service != nil {
		return a.service, nil
	}

	st, err := store.Open(ctx, a.config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	svc, err := catalog.NewService(st, a.notifierLocked(),
		catalog.WithLogger(a.logger),
		catalog.WithTracer(otel.Tracer(tracerName)),
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	driver, _, _ := store.Detect(a.config.DatabaseURL)
	a.logger.Debug().Str("driver", driver).Msg("Catalog store opened")

	a.store = st
	a.service = svc
	return svc, nil
}

// Ready pings the catalog store.
func (a *App) Ready(ctx context.Context) error {
	a.mu.RLock()
	st := a.store
	a.mu.RUnlock()

	if st == nil {
		return errors.NewStorageError("ping", errors.New("store not opened"))
	}
	return st.Ping(ctx)
}

// Shutdown closes the notifier, which disconnects every subscriber, and
// then the store.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close catalog store")
			return err
		}
		a.store = nil
		a.service = nil
	}
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// Ensure App implements application.Application at compile time.
var _ application.Application = (*App)(nil)
