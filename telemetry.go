package formstage

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware wraps every operation in a span named after the operation.
func TracingMiddleware(tracer trace.Tracer) Middleware {
	return func(next OperationFunc) OperationFunc {
		return func(ctx context.Context, op *Operation, logger Logger) error {
			ctx, span := tracer.Start(ctx, op.Name)
			defer span.End()

			err := next(ctx, op, logger)

			// The handler fills in the category and resource as it resolves them.
			span.SetAttributes(
				attribute.String("formstage.category", op.CategoryID),
				attribute.String("formstage.resource", op.ResourceID),
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		}
	}
}

// OTelMetricsMiddleware records operation counts and latencies through an OpenTelemetry meter.
func OTelMetricsMiddleware(meter metric.Meter) (Middleware, error) {
	counter, err := meter.Int64Counter("formstage.operations",
		metric.WithDescription("Engine operations by name and outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create operations counter: %w", err)
	}

	latency, err := meter.Float64Histogram("formstage.operation.duration",
		metric.WithDescription("Engine operation duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return func(next OperationFunc) OperationFunc {
		return func(ctx context.Context, op *Operation, logger Logger) error {
			start := time.Now()
			err := next(ctx, op, logger)

			attrs := metric.WithAttributes(
				attribute.String("operation", op.Name),
				attribute.String("outcome", outcome(err)),
			)
			counter.Add(ctx, 1, attrs)
			latency.Record(ctx, time.Since(start).Seconds(), attrs)
			return err
		}
	}, nil
}
