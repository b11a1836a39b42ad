// Package telemetry sets up OpenTelemetry tracing for twind.
//
// Spans are emitted by the memory store and exported over OTLP. Telemetry is
// optional: when disabled, the global no-op tracer provider stays in place and
// instrumented code costs nothing. Telemetry failures degrade, they never
// crash the application.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// serviceName identifies twind in exported traces.
const serviceName = "twind"

// Config holds tracing configuration.
type Config struct {
	// Enabled turns span export on. When false, New returns a no-op instance.
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP collector endpoint, host:port.
	Endpoint string `koanf:"endpoint"`

	// Protocol selects the exporter transport: "grpc" (default) or
	// "http/protobuf".
	Protocol string `koanf:"protocol"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `koanf:"insecure"`

	// SampleRate is the trace sampling ratio in [0,1]. 1 samples everything.
	SampleRate float64 `koanf:"sample_rate"`

	// ServiceVersion is stamped on the trace resource.
	ServiceVersion string `koanf:"service_version"`
}

// Telemetry owns the tracer provider lifecycle.
type Telemetry struct {
	provider *trace.TracerProvider
}

// New initializes tracing and installs the global tracer provider.
//
// A disabled config returns a usable no-op instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(sampler(cfg.SampleRate))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Telemetry{provider: provider}, nil
}

func newExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	switch cfg.Protocol {
	case "http/protobuf":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(stripScheme(cfg.Endpoint)),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	case "grpc", "":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(stripScheme(cfg.Endpoint)),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown telemetry protocol %q", cfg.Protocol)
	}
}

func sampler(rate float64) trace.Sampler {
	switch {
	case rate >= 1.0 || rate == 0:
		// Unset rate defaults to sampling everything.
		return trace.AlwaysSample()
	case rate < 0:
		return trace.NeverSample()
	default:
		return trace.TraceIDRatioBased(rate)
	}
}

// stripScheme removes http:// or https:// from an endpoint. The OTLP
// exporters expect host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return endpoint
}

// Shutdown flushes pending spans and stops the provider. Safe on a no-op
// instance.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
