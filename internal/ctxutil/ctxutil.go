// Package ctxutil provides shared context key accessors.
//
// The trace and span of a run travel in the context so that concurrent runs
// never share attribution. The observability engine writes these keys; any
// package that logs or exports on behalf of a run may read them without
// importing the engine.
package ctxutil

import "context"

type contextKey string

const (
	keyTrace contextKey = "trace_id"
	keySpan  contextKey = "span_id"
)

// WithTrace returns a context carrying traceID and no current span.
func WithTrace(ctx context.Context, traceID string) context.Context {
	ctx = context.WithValue(ctx, keyTrace, traceID)
	return context.WithValue(ctx, keySpan, "")
}

// WithSpan returns a context in which spanID is the current span.
func WithSpan(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, keySpan, spanID)
}

// TraceFromContext returns the trace id carried by ctx, or "".
func TraceFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyTrace).(string); ok {
		return v
	}
	return ""
}

// SpanFromContext returns the current span id carried by ctx, or "".
func SpanFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keySpan).(string); ok {
		return v
	}
	return ""
}
