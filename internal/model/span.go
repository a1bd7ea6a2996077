package model

import (
	"math"
	"time"
	"unicode/utf8"
)

// Span is a timed record of one stage's backend round trip.
// A span is mutable only until it is closed; closed spans are never modified.
type Span struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	Metadata     map[string]any `json:"metadata"`
}

// Closed reports whether the span has an end time.
func (s Span) Closed() bool {
	return s.EndedAt != nil
}

// Duration is EndedAt-StartedAt, or zero while the span is open.
func (s Span) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// DurationMillis returns the duration in milliseconds rounded to two decimals.
func (s Span) DurationMillis() float64 {
	ms := float64(s.Duration()) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}

// EstimateTokens approximates a token count as one token per four characters
// of text. It is not a tokenizer.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}
