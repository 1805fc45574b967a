package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds OpenTelemetry configuration
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	CollectorAddr  string
	SampleRatio    float64
}

// Telemetry holds the tracer provider and tracer
type Telemetry struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

var (
	globalTelemetry *Telemetry
	mu              sync.RWMutex
)

// Init initializes OpenTelemetry. A disabled config installs the global no-op tracer.
func Init(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if cfg == nil || !cfg.Enabled {
		name := "eventflow"
		if cfg != nil && cfg.ServiceName != "" {
			name = cfg.ServiceName
		}
		t := &Telemetry{tracer: otel.Tracer(name)}
		setGlobal(t)
		return t, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.CollectorAddr),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Telemetry{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}
	setGlobal(t)

	return t, nil
}

func setGlobal(t *Telemetry) {
	mu.Lock()
	globalTelemetry = t
	mu.Unlock()
}

func getGlobal() *Telemetry {
	mu.RLock()
	defer mu.RUnlock()
	return globalTelemetry
}

// Shutdown flushes and stops the tracer provider
func Shutdown(ctx context.Context) error {
	if t := getGlobal(); t != nil && t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the tracer
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// StartSpan starts a new span with the given name
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	t := getGlobal()
	if t == nil || t.tracer == nil {
		return otel.Tracer("eventflow").Start(ctx, name, opts...)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// GetTraceID returns the trace ID from context
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().HasTraceID() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
