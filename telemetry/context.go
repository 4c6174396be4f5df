package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan starts a new span and returns the context with the span
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, name, opts...)
}

// StartRemoteIOSpan starts a span for a request against a remote resource.
func StartRemoteIOSpan(ctx context.Context, operation string, locator string, fromByte, toByte int64) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, fmt.Sprintf("remote.%s", operation), trace.WithAttributes(
		attribute.String("operation.type", "remote_io"),
		attribute.String("remote.operation", operation),
		attribute.String("remote.locator", locator),
		attribute.Int64("remote.from_byte", fromByte),
		attribute.Int64("remote.to_byte", toByte),
	))
}

// RecordError records an error in the span and sets the span status to error
func RecordError(span trace.Span, err error, message string) {
	if err != nil {
		span.RecordError(err, trace.WithAttributes(
			attribute.String("error.message", message),
		))
		span.SetStatus(codes.Error, message)
	}
}
