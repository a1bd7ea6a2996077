package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock is a manually advanced clock for deterministic bucket math.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, rate float64, burst int) (*MemoryLimiter, *fakeClock) {
	t.Helper()
	m := NewMemoryLimiter(rate, burst)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m.now = clock.now
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Fatalf("Close error: %v", err)
		}
	})
	return m, clock
}

func TestReserveWithinBurstDoesNotWait(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 3)
	for i := 0; i < 3; i++ {
		if d := m.reserve("gemini"); d != 0 {
			t.Fatalf("reserve %d: delay = %s, want 0", i, d)
		}
	}
}

func TestReserveQueuesCallersOneIntervalApart(t *testing.T) {
	m, _ := newTestLimiter(t, 2, 1) // one token every 500ms
	if d := m.reserve("k"); d != 0 {
		t.Fatalf("first reserve delay = %s, want 0", d)
	}
	if d := m.reserve("k"); d != 500*time.Millisecond {
		t.Fatalf("second reserve delay = %s, want 500ms", d)
	}
	if d := m.reserve("k"); d != time.Second {
		t.Fatalf("third reserve delay = %s, want 1s", d)
	}
}

func TestRefillCapsAtBurst(t *testing.T) {
	m, clock := newTestLimiter(t, 10, 2)
	m.reserve("k")
	m.reserve("k")
	clock.advance(time.Hour)
	m.reserve("k")
	m.reserve("k")
	if d := m.reserve("k"); d <= 0 {
		t.Fatal("expected a wait after draining a refilled bucket")
	}
}

func TestIndependentKeys(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 1)
	m.reserve("a")
	if d := m.reserve("b"); d != 0 {
		t.Fatalf("key b delay = %s, want 0", d)
	}
}

func TestWaitReturnsImmediatelyWithBudget(t *testing.T) {
	m := NewMemoryLimiter(1000, 1)
	defer func() { _ = m.Close() }()
	if err := m.Wait(context.Background(), "k"); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
}

func TestWaitSleepsForRefill(t *testing.T) {
	m := NewMemoryLimiter(100, 1) // 10ms per token
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := m.Wait(ctx, "k"); err != nil {
			t.Fatalf("Wait %d error: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("three waits took %s, want at least ~20ms", elapsed)
	}
}

func TestCancelledWaitRefundsToken(t *testing.T) {
	m, _ := newTestLimiter(t, 0.001, 1) // effectively no refill
	m.reserve("k")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait error = %v, want deadline exceeded", err)
	}

	m.mu.Lock()
	tokens := m.buckets["k"].tokens
	m.mu.Unlock()
	if tokens < -0.01 || tokens > 0.01 {
		t.Fatalf("tokens after refund = %f, want ~0", tokens)
	}
}

func TestWaitOnDoneContext(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Wait(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait error = %v, want canceled", err)
	}
	if _, ok := m.buckets["k"]; ok {
		t.Fatal("a wait on a done context must not touch the bucket")
	}
}

func TestEvictStale(t *testing.T) {
	m, clock := newTestLimiter(t, 1, 1)
	m.reserve("idle")
	clock.advance(time.Second)
	m.reserve("idle") // tokens back to 0, not negative
	clock.advance(staleThreshold + time.Minute)
	m.reserve("fresh")

	m.evictStale()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets["idle"]; ok {
		t.Fatal("idle key should be evicted")
	}
	if _, ok := m.buckets["fresh"]; !ok {
		t.Fatal("fresh key should be kept")
	}
}

func TestCloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNewSelectsNoopForZeroRate(t *testing.T) {
	l := New(0, 5)
	if _, ok := l.(NoopLimiter); !ok {
		t.Fatalf("New(0, 5) = %T, want NoopLimiter", l)
	}
	if err := l.Wait(context.Background(), "k"); err != nil {
		t.Fatalf("noop Wait: %v", err)
	}
	m := New(5, 1)
	defer func() { _ = m.Close() }()
	if _, ok := m.(*MemoryLimiter); !ok {
		t.Fatalf("New(5, 1) = %T, want *MemoryLimiter", m)
	}
}
