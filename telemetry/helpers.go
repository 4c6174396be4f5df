package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceExecutionTime measures the execution time of a function and records it in the span
func TraceExecutionTime(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := StartSpan(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.Int64("execution_time_ms", elapsed.Milliseconds()),
	)

	if err != nil {
		RecordError(span, err, "Operation failed")
	}

	return err
}

// TraceFunctionExecution is a simple helper to trace the execution of a function
func TraceFunctionExecution(ctx context.Context, name string) (context.Context, trace.Span, func()) {
	ctx, span := StartSpan(ctx, name)
	start := time.Now()

	return ctx, span, func() {
		elapsed := time.Since(start)
		span.SetAttributes(attribute.Int64("execution_time_ms", elapsed.Milliseconds()))
		span.End()
	}
}
