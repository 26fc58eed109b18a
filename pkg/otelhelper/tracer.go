// Package otelhelper provides distributed tracing for conversation dispatch.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Common attribute keys.
	InstanceIDKey = "chatflow.instance.id"
	ContactIDKey  = "chatflow.contact.id"
	MessageIDKey  = "chatflow.message.id"
	WorkflowIDKey = "chatflow.workflow.id"
	NodeIDKey     = "chatflow.node.id"
	RunStateKey   = "chatflow.run.state"
	VerdictKey    = "chatflow.arbitrator.outcome"
	EventIDKey    = "chatflow.event.id"
	EventTypeKey  = "chatflow.event.type"
)

// Shutdown flushes and stops the tracer provider.
type Shutdown func(ctx context.Context) error

// NewTracer installs an OTLP/HTTP tracer provider as the global provider. The
// exporter is configured by the standard OTEL_EXPORTER_OTLP_* variables.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, Shutdown, error) {
	provider, err := newTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, nil, err
	}

	return provider.Tracer(serviceName), provider.Shutdown, nil
}

// Tracer returns a tracer from the global provider, a no-op until NewTracer runs.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// SetError marks span as failed with err.
func SetError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent notes on the span in ctx that an event left this process.
func RecordEvent(ctx context.Context, name, eventID, eventType string) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(
		attribute.String(EventIDKey, eventID),
		attribute.String(EventTypeKey, eventType),
	))
}

func newTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}
