package ctxutil

import (
	"context"
	"testing"
)

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()
	if got := TraceFromContext(ctx); got != "" {
		t.Fatalf("TraceFromContext = %q, want empty", got)
	}
	if got := SpanFromContext(ctx); got != "" {
		t.Fatalf("SpanFromContext = %q, want empty", got)
	}
}

func TestWithTraceResetsSpan(t *testing.T) {
	ctx := WithSpan(WithTrace(context.Background(), "aaaa1111"), "s1")
	if got := SpanFromContext(ctx); got != "s1" {
		t.Fatalf("SpanFromContext = %q, want s1", got)
	}

	ctx = WithTrace(ctx, "bbbb2222")
	if got := TraceFromContext(ctx); got != "bbbb2222" {
		t.Fatalf("TraceFromContext = %q, want bbbb2222", got)
	}
	if got := SpanFromContext(ctx); got != "" {
		t.Fatalf("SpanFromContext after new trace = %q, want empty", got)
	}
}

func TestChildContextDoesNotLeakToParent(t *testing.T) {
	parent := WithTrace(context.Background(), "t")
	_ = WithSpan(parent, "child")
	if got := SpanFromContext(parent); got != "" {
		t.Fatalf("parent span = %q, want empty", got)
	}
}
