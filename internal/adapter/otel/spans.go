package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "collectibles"

// StartPublishSpan starts a span covering one broadcast fan-out.
func StartPublishSpan(ctx context.Context, sessions, items int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "broadcast.publish",
		trace.WithAttributes(
			attribute.Int("broadcast.sessions", sessions),
			attribute.Int("catalog.items", items),
		),
	)
}

// StartMutationSpan starts a span for a catalog create, update or delete.
func StartMutationSpan(ctx context.Context, op string, itemID int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "catalog."+op,
		trace.WithAttributes(
			attribute.String("catalog.op", op),
			attribute.Int64("item.id", itemID),
		),
	)
}
