package storage

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how a multi-statement write is retried on contention.
type RetryPolicy struct {
	Attempts  int           // Total tries, including the first.
	BaseDelay time.Duration // Doubled after each failed try, plus up to BaseDelay of jitter.
	MaxDelay  time.Duration
}

// compactionRetry governs ReplaceIncidents on both SQL engines.
var compactionRetry = RetryPolicy{Attempts: 4, BaseDelay: 20 * time.Millisecond, MaxDelay: 500 * time.Millisecond}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// attempts are spent or ctx is done. The last error from fn is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	delay := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) || attempt >= p.Attempts {
			return err
		}
		wait := delay
		if delay > 0 {
			wait += time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter only
		}
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}
