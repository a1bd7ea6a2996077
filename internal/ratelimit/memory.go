package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket is the token state of one key. tokens may go negative: each
// negative token is a caller already scheduled to run once it refills.
type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter implements Limiter with an in-memory token bucket per key.
//
// Waiters reserve a token up front and sleep until it refills, so
// concurrent callers are released one refill interval apart in arrival
// order. A background goroutine evicts idle keys every minute.
type MemoryLimiter struct {
	rate  float64 // tokens added per second
	burst float64 // bucket capacity
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a token bucket limiter allowing rate calls per
// second per key with bursts of up to burst calls. A burst below 1 is
// treated as 1. Call Close to stop the eviction goroutine.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	if burst < 1 {
		burst = 1
	}
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Wait reserves one token for key and sleeps until it is available.
func (m *MemoryLimiter) Wait(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delay := m.reserve(key)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		m.refund(key)
		return ctx.Err()
	}
}

// reserve takes a token and returns how long the caller must wait for it.
func (m *MemoryLimiter) reserve(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.refill(key)
	b.tokens--
	if b.tokens >= 0 {
		return 0
	}
	return time.Duration(-b.tokens / m.rate * float64(time.Second))
}

func (m *MemoryLimiter) refund(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.refill(key)
	b.tokens = min(b.tokens+1, m.burst)
}

// refill brings key's bucket up to date. Callers hold m.mu.
func (m *MemoryLimiter) refill(key string) *bucket {
	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, lastUpdate: now}
		m.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.lastUpdate).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+elapsed*m.rate, m.burst)
		b.lastUpdate = now
	}
	return b
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

const staleThreshold = 10 * time.Minute

func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

// evictStale drops full buckets idle for longer than staleThreshold.
// A bucket with pending reservations is never dropped.
func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-staleThreshold)
	for key, b := range m.buckets {
		if b.lastUpdate.Before(cutoff) && b.tokens >= 0 {
			delete(m.buckets, key)
		}
	}
}
