package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartConnectSpan starts a span covering one connection attempt.
func (t *Telemetry) StartConnectSpan(ctx context.Context, endpoint string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "wirelink.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("wirelink.endpoint", endpoint),
			attribute.Int("wirelink.attempt", attempt),
		),
	)
}

// StartSendSpan starts a span covering one outbound envelope.
func (t *Telemetry) StartSendSpan(ctx context.Context, msgType, msgID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("wirelink.send %s", msgType),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("wirelink.message.type", msgType),
			attribute.String("wirelink.message.id", msgID),
		),
	)
}

// StartDispatchSpan starts a span covering the dispatch of one inbound
// envelope to subscribers.
func (t *Telemetry) StartDispatchSpan(ctx context.Context, msgType, msgID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("wirelink.dispatch %s", msgType),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("wirelink.message.type", msgType),
			attribute.String("wirelink.message.id", msgID),
		),
	)
}

// EndSpan ends a span, recording err when present.
func EndSpan(span trace.Span, err error) {
	if span.IsRecording() && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// AddEvent adds an event to the current span
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// RecordError records an error on the span from context
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
	}
}
