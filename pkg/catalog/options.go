package catalog

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/agentstation/retailchain/pkg/errors"
)

// Option configures a Service.
type Option func(*config) error

type config struct {
	logger *zerolog.Logger
	tracer trace.Tracer
	seed   []Product
}

func defaultConfig() *config {
	nop := zerolog.Nop()
	return &config{
		logger: &nop,
		tracer: noop.NewTracerProvider().Tracer(""),
		seed:   DefaultSeed(),
	}
}

// WithLogger sets the logger used for mutation and seeding messages.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return errors.NewConfigError("catalog", "logger must not be nil", nil)
		}
		c.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used to span service operations.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) error {
		if tracer == nil {
			return errors.NewConfigError("catalog", "tracer must not be nil", nil)
		}
		c.tracer = tracer
		return nil
	}
}

// WithSeed replaces the records inserted when ListProducts finds an empty
// store. An empty slice disables seeding.
func WithSeed(products []Product) Option {
	return func(c *config) error {
		for _, p := range products {
			if err := p.Validate(); err != nil {
				return errors.NewConfigError("catalog", "invalid seed product", err)
			}
		}
		c.seed = append([]Product(nil), products...)
		return nil
	}
}
