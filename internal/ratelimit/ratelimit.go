// Package ratelimit paces calls to the generative backend.
//
// Hosted model APIs enforce per-model request quotas. A Limiter delays a
// caller until its key has budget instead of rejecting the call, so a burst
// of concurrent runs queues up rather than failing with quota errors.
package ratelimit

import "context"

// Limiter blocks until a call identified by key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Wait returns nil once the call may proceed, or ctx.Err() if ctx ends
	// first. A cancelled wait does not consume budget.
	Wait(ctx context.Context, key string) error

	// Close releases resources (cleanup goroutines).
	Close() error
}

// NoopLimiter never waits. Used when pacing is disabled.
type NoopLimiter struct{}

// Wait returns immediately unless ctx is already done.
func (NoopLimiter) Wait(ctx context.Context, _ string) error { return ctx.Err() }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }

// New returns a MemoryLimiter for a positive rate and NoopLimiter otherwise.
func New(rate float64, burst int) Limiter {
	if rate <= 0 {
		return NoopLimiter{}
	}
	return NewMemoryLimiter(rate, burst)
}
