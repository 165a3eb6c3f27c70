// Package tracing wraps OpenTelemetry span creation for one ReAct iteration
// and its child tool calls, grounded on the teacher's
// internal/observability.Tracer (trimmed to the single Start/shutdown seam
// this module's loop package needs).
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer provider. An empty Endpoint disables export
// and falls back to otel's no-op global tracer.
type Config struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
}

// Tracer opens spans for ReAct iterations and tool calls.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer constructs a Tracer. Call the returned shutdown func to flush
// and close the exporter on process exit.
func NewTracer(ctx context.Context, cfg Config) (*Tracer, func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }, nil
	}

	var opts []otlptracegrpc.Option
	opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes())
	if err != nil {
		return nil, nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, provider.Shutdown, nil
}

// StartIteration opens a span for one ReAct iteration.
func (t *Tracer) StartIteration(ctx context.Context, taskID string, index int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "react.iteration", trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.Int("iteration.index", index),
	))
}

// StartToolCall opens a child span for one tool dispatch.
func (t *Tracer) StartToolCall(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "tool.call", trace.WithAttributes(
		attribute.String("tool.name", toolName),
	))
}
