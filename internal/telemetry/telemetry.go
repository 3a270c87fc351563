// Package telemetry configures the process-wide OpenTelemetry tracer
// provider and propagators.
package telemetry

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/agentstation/retailchain/pkg/errors"
)

// Config controls tracing initialization.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint is a host:port for an OTLP gRPC collector. It takes
	// precedence over Stdout.
	OTLPEndpoint string

	// Stdout exports spans as JSON to StdoutWriter (os.Stderr when nil).
	Stdout       bool
	StdoutWriter io.Writer

	// SampleRatio in [0,1]; zero means sample everything.
	SampleRatio float64
}

// ShutdownFunc flushes and stops the exporter.
type ShutdownFunc func(context.Context) error

// Enabled reports whether cfg selects any exporter.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.OTLPEndpoint) != "" || c.Stdout
}

// Setup installs W3C propagators and, when an exporter is configured, a
// global SDK tracer provider. Without an exporter the global provider is
// left as the no-op default.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "retailchain"
	}
	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, errors.NewConfigError("telemetry", "building resource", err)
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(200*time.Millisecond)),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithTimeout(3*time.Second),
		)
		if err != nil {
			return nil, errors.NewConfigError("telemetry", "creating OTLP exporter", err)
		}
		return exp, nil
	}

	w := cfg.StdoutWriter
	if w == nil {
		w = os.Stderr
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, errors.NewConfigError("telemetry", "creating stdout exporter", err)
	}
	return exp, nil
}
