// Package observability records traces and spans for orchestration runs,
// emits structured log lines tagged with the active trace and span, and
// renders aggregate reports over the recorded span log.
//
// The active trace and the current span travel in a context.Context rather
// than in process-wide fields, so concurrent runs keep their attribution apart.
// The span log itself is shared and append-only.
package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManishShirke/aiops-agent/internal/ctxutil"
	"github.com/ManishShirke/aiops-agent/internal/model"
	"github.com/ManishShirke/aiops-agent/internal/telemetry"
)

// Sentinels used in log lines outside a trace or span.
const (
	NoTrace = "NO_TRACE"
	NoSpan  = "ROOT"
)

// Component tag for the engine's own log lines.
const componentTelemetry = "TELEMETRY"

// Engine owns the span log. Safe for concurrent use.
type Engine struct {
	logger *slog.Logger
	tracer trace.Tracer
	tokens metric.Int64Counter
	now    func() time.Time

	mu          sync.Mutex
	spans       []model.Span
	activeTrace string
}

// New creates an engine that writes log lines to logger.
func New(logger *slog.Logger) *Engine {
	tokens, err := telemetry.Meter("aiops/observability").Int64Counter("aiops.span.tokens",
		metric.WithDescription("Estimated tokens per closed span"),
	)
	if err != nil {
		logger.Warn("observability: token counter unavailable", "error", err)
	}
	return &Engine{
		logger: logger,
		tracer: telemetry.Tracer("aiops/observability"),
		tokens: tokens,
		now:    time.Now,
	}
}

// StartTrace allocates a new short trace identifier and returns a context
// carrying it. Spans already in the log are untouched.
func (e *Engine) StartTrace(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()[:8]
	e.mu.Lock()
	e.activeTrace = id
	e.mu.Unlock()
	ctx = ctxutil.WithTrace(ctx, id)
	e.logAt(id, NoSpan, model.LevelInfo, componentTelemetry, "Trace started")
	return ctx, id
}

// ActiveTrace returns the most recently started trace id, or NoTrace.
func (e *Engine) ActiveTrace() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeTrace == "" {
		return NoTrace
	}
	return e.activeTrace
}

// TraceID returns the trace carried by ctx, or NoTrace.
func TraceID(ctx context.Context) string {
	if id := ctxutil.TraceFromContext(ctx); id != "" {
		return id
	}
	return NoTrace
}

// SpanID returns the current span carried by ctx, or NoSpan.
func SpanID(ctx context.Context) string {
	if id := ctxutil.SpanFromContext(ctx); id != "" {
		return id
	}
	return NoSpan
}

// Log emits one structured line tagged with the trace and span in ctx.
// attrs are slog key/value pairs appended as context.
func (e *Engine) Log(ctx context.Context, level model.Level, component, msg string, attrs ...any) {
	e.logAt(TraceID(ctx), SpanID(ctx), level, component, msg, attrs...)
}

func (e *Engine) logAt(traceID, spanID string, level model.Level, component, msg string, attrs ...any) {
	args := make([]any, 0, len(attrs)+6)
	args = append(args, "trace_id", traceID, "span_id", spanID, "component", component)
	args = append(args, attrs...)
	e.logger.Log(context.Background(), SlogLevel(level), msg, args...)
}

// SpanHandle references an open span. It is closed with EndSpan.
type SpanHandle struct {
	span         model.Span
	parentSpanID string
	otelSpan     trace.Span
	closed       bool
}

// Span returns a copy of the span as currently recorded.
func (h *SpanHandle) Span() model.Span {
	return h.span
}

// StartSpan opens a span named name inside the trace carried by ctx and
// returns a context in which it is the current span.
func (e *Engine) StartSpan(ctx context.Context, name string) (context.Context, *SpanHandle) {
	traceID := TraceID(ctx)
	parentID := ctxutil.SpanFromContext(ctx)

	ctx, otelSpan := e.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("aiops.trace_id", traceID),
	))

	h := &SpanHandle{
		span: model.Span{
			TraceID:      traceID,
			SpanID:       uuid.NewString()[:6],
			ParentSpanID: parentID,
			Name:         name,
			StartedAt:    e.now(),
			Metadata:     map[string]any{},
		},
		parentSpanID: parentID,
		otelSpan:     otelSpan,
	}
	ctx = ctxutil.WithSpan(ctx, h.span.SpanID)
	e.logAt(traceID, h.span.SpanID, model.LevelInfo, componentTelemetry, "Starting Span: "+name)
	return ctx, h
}

// EndSpan closes the span, estimates token counts from the input and output
// text, attaches metadata and appends the span to the log. Closing a span
// twice leaves the first record in place.
func (e *Engine) EndSpan(h *SpanHandle, input, output string, metadata map[string]any) model.Span {
	if h.closed {
		e.logAt(h.span.TraceID, h.span.SpanID, model.LevelWarn, componentTelemetry, "Span already closed: "+h.span.Name)
		return h.span
	}
	end := e.now()
	h.span.EndedAt = &end
	h.span.InputTokens = model.EstimateTokens(input)
	h.span.OutputTokens = model.EstimateTokens(output)
	if metadata == nil {
		metadata = map[string]any{}
	}
	h.span.Metadata = metadata
	h.closed = true

	e.mu.Lock()
	e.spans = append(e.spans, h.span)
	e.mu.Unlock()

	h.otelSpan.SetAttributes(
		attribute.Int("aiops.tokens.input", h.span.InputTokens),
		attribute.Int("aiops.tokens.output", h.span.OutputTokens),
	)
	h.otelSpan.End()
	if e.tokens != nil {
		ctx := context.Background()
		e.tokens.Add(ctx, int64(h.span.InputTokens), metric.WithAttributes(
			attribute.String("span", h.span.Name), attribute.String("direction", "in")))
		e.tokens.Add(ctx, int64(h.span.OutputTokens), metric.WithAttributes(
			attribute.String("span", h.span.Name), attribute.String("direction", "out")))
	}

	parent := h.parentSpanID
	if parent == "" {
		parent = NoSpan
	}
	e.logAt(h.span.TraceID, parent, model.LevelSuccess, componentTelemetry,
		"Finished Span: "+h.span.Name,
		"duration_ms", h.span.DurationMillis(),
		"tokens_in", h.span.InputTokens,
		"tokens_out", h.span.OutputTokens,
	)
	return h.span
}

// Spans returns a copy of the span log in insertion order.
func (e *Engine) Spans() []model.Span {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Span, len(e.spans))
	copy(out, e.spans)
	return out
}

// SpansFor returns the closed spans of traceID, or all spans when traceID is empty.
func (e *Engine) SpansFor(traceID string) []model.Span {
	all := e.Spans()
	if traceID == "" {
		return all
	}
	out := all[:0]
	for _, s := range all {
		if s.TraceID == traceID {
			out = append(out, s)
		}
	}
	return out
}
