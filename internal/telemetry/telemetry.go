// Package telemetry wires OpenTelemetry tracing and Prometheus metrics
// around the orchestrator's agent/planner/executor calls. Grounded on the
// teacher's pkg/observability/tracer.go: the same OTLP-gRPC exporter and
// noop fallback when tracing is disabled, trimmed to the single tracer
// name Genesis needs rather than a per-component registry.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerConfig controls whether and where spans are exported.
type TracerConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty"`
	EndpointURL  string  `yaml:"endpoint_url,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty"`
}

func (c *TracerConfig) SetDefaults() {
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
	if c.ServiceName == "" {
		c.ServiceName = "genesis"
	}
}

// InitTracer installs cfg's exporter as the global tracer provider and
// returns it so the caller can flush it on shutdown. Disabled
// configuration yields a no-op provider; every span recorded against it
// is discarded without allocating an exporter.
func InitTracer(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, error) {
	cfg.SetDefaults()
	if !cfg.Enabled {
		return noop.NewTracerProvider(), nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.EndpointURL),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the named tracer off the global provider. Called after
// InitTracer (or never, in tests — otel.Tracer always returns a usable
// no-op tracer against the default global provider).
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
