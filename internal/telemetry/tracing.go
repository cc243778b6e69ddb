// Package telemetry provides a thin span-per-operation tracing helper shared
// by every pipeline stage, mirroring the reference stack's tracing convention.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the tracer used by StartSpan. Call once during startup.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a span named spanName and returns the derived context.
// It is a no-op (returns the span already in ctx) if no tracer has been set,
// so packages can call it unconditionally in tests.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// TraceParent extracts the W3C traceparent header value from ctx, if any.
func TraceParent(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}
