// Package tracing wraps an OpenTelemetry TracerProvider for the analysis
// core. The core's components do not start spans themselves; spans a
// caller starts with StartSpan have their IDs added to log lines by
// telemetry/logging.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Provider owns the process-wide TracerProvider and exposes a Tracer for
// the telemetry core's components.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer oteltrace.Tracer
}

// NewProvider builds a Provider with a no-exporter TracerProvider (spans are
// created and ended but not shipped anywhere); callers that want an
// exporter can call RegisterSpanProcessor on the returned TracerProvider
// before the first span starts.
func NewProvider(serviceName, environment string) (*Provider, error) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String(environment),
		)),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp, tracer: tp.Tracer(serviceName)}, nil
}

// TracerProvider returns the underlying SDK provider so callers can attach
// exporters or samplers.
func (p *Provider) TracerProvider() *sdktrace.TracerProvider { return p.tp }

// StartSpan starts a span named after the telemetry-core operation it
// wraps (e.g. "segmenter.ingest_frame", "analysis.analyze_lap").
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	return p.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes and stops the provider, blocking up to the context
// deadline.
func (p *Provider) Shutdown(ctx context.Context) error { return p.tp.Shutdown(ctx) }

// ExtractIDs returns the hex trace and span IDs carried by ctx's current
// span, or two empty strings if ctx carries no valid span context.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
