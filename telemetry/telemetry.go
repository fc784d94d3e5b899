// Package telemetry stamps every request with a correlation ID and,
// when a tracer is configured, wraps each attempt in an OpenTelemetry
// span.
package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NewTraceID returns a fresh v4 UUID string, stamped on a request's
// state at attach time.
func NewTraceID() string {
	return uuid.New().String()
}

// NoopTracer returns a tracer that records nothing, the default for an
// [engine.Engine] that was not given one explicitly.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("flightreq-noop")
}

// StartAttempt opens a span named "flightreq.attempt" for one
// easy-handle's lifetime, tagged with the method and URL. If tracer
// prefers to fall back on the trace ID already carried by traceID
// (rather than the span's own, possibly-invalid, trace ID), callers
// read SpanContext().TraceID() themselves; StartAttempt just opens the
// span.
func StartAttempt(ctx context.Context, tracer trace.Tracer, method, url, traceID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flightreq.attempt", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", url),
		attribute.String("flightreq.trace_id", traceID),
	))
}

// EndAttempt records the outcome and closes span. err, if non-nil, is
// recorded and the span marked accordingly; statusCode is recorded
// when >= 0.
func EndAttempt(span trace.Span, statusCode int, err error) {
	if statusCode >= 0 {
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
