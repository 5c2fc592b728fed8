package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "waypoint"

// StartResolveSpan starts a span for hint resolution.
func StartResolveSpan(ctx context.Context, hint string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "resolve",
		trace.WithAttributes(
			attribute.String("resolve.hint", hint),
		),
	)
}

// StartReconstructSpan starts a span for context reconstruction.
func StartReconstructSpan(ctx context.Context, instanceID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "reconstruct",
		trace.WithAttributes(
			attribute.String("instance.id", instanceID),
		),
	)
}

// StartResumeSpan starts a span for a full resume call.
func StartResumeSpan(ctx context.Context, hint string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "resume",
		trace.WithAttributes(
			attribute.String("resolve.hint", hint),
		),
	)
}
