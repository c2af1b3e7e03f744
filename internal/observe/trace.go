package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer resolves the kiosk tracer from the global provider on every call,
// so providers installed after package init are honoured.
func Tracer() trace.Tracer {
	return otel.Tracer(meterName)
}

// StartSpan is shorthand for Tracer().Start.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the hex trace ID of the span in ctx, or "" without one.
// Every dialogue-loop step runs under its own span, so the ID ties together
// the log lines, metrics exemplars and HTTP responses of one step.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger, tagged with trace_id and span_id when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

// StartTurn starts the span for one dialogue-loop step in the given state and
// returns a logger that carries its IDs and the state name.
func StartTurn(ctx context.Context, state string) (context.Context, trace.Span, *slog.Logger) {
	ctx, span := StartSpan(ctx, "dialogue."+state,
		trace.WithAttributes(attribute.String("dialogue.state", state)),
	)
	return ctx, span, Logger(ctx).With("state", state)
}
