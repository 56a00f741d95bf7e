package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLimiterMemoryWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := New(NewMemoryStoreWithClock(clock.Now), "reset", 15*time.Minute, 3)
	l.Now = clock.Now

	for i := 1; i <= 3; i++ {
		res, err := l.Check(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Check %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.AttemptsLeft != 3-i {
			t.Fatalf("request %d: attemptsLeft=%d, want %d", i, res.AttemptsLeft, 3-i)
		}
	}

	res, err := l.Check(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Allowed || res.AttemptsLeft != 0 {
		t.Fatalf("4th request: %+v, want denied", res)
	}
	if want := clock.Now().Add(15 * time.Minute); !res.ResetAt.Equal(want) {
		t.Fatalf("ResetAt=%v, want %v", res.ResetAt, want)
	}

	// Other keys have their own budget.
	if res, _ := l.Check(ctx, "5.6.7.8"); !res.Allowed {
		t.Fatal("independent key should be allowed")
	}

	// Still inside the window at exactly ResetAt.
	clock.Advance(15 * time.Minute)
	if res, _ := l.Check(ctx, "1.2.3.4"); res.Allowed {
		t.Fatal("request at ResetAt should still be denied")
	}

	clock.Advance(time.Second)
	res, err = l.Check(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Check after reset: %v", err)
	}
	if !res.Allowed || res.AttemptsLeft != 2 {
		t.Fatalf("after reset: %+v, want allowed with 2 left", res)
	}
}

func TestLimiterResetAndExhaust(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), "otp", 5*time.Minute, 3)

	for i := 0; i < 3; i++ {
		_, _ = l.Check(ctx, "a@example.com")
	}
	if err := l.Reset(ctx, "a@example.com"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if res, _ := l.Check(ctx, "a@example.com"); !res.Allowed || res.AttemptsLeft != 2 {
		t.Fatalf("after Reset: %+v", res)
	}

	if err := l.Exhaust(ctx, "b@example.com"); err != nil {
		t.Fatalf("Exhaust: %v", err)
	}
	if res, _ := l.Check(ctx, "b@example.com"); res.Allowed {
		t.Fatal("exhausted key should be denied")
	}
}

func TestLimiterConcurrentHits(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), "burst", time.Minute, 10)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(ctx, "same-key")
			if err != nil {
				t.Errorf("Check: %v", err)
				return
			}
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 10 {
		t.Fatalf("allowed=%d, want 10", got)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStoreWithClock(clock.Now)

	_, _ = s.Increment(ctx, "short", time.Second)
	_, _ = s.Increment(ctx, "long", time.Hour)
	clock.Advance(2 * time.Second)

	if _, ok, _ := s.Get(ctx, "short"); ok {
		t.Fatal("expired record should be reported missing")
	}
	_, _ = s.Increment(ctx, "again", time.Second)
	clock.Advance(2 * time.Second)

	if n := s.Sweep(clock.Now()); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Fatalf("Len=%d, want 1", s.Len())
	}
}

func TestLimiterRedisWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	l := New(NewRedisStore(rdb, "test"), "otp", 5*time.Minute, 3)

	for i := 1; i <= 3; i++ {
		res, err := l.Check(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Check %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	res, err := l.Check(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Allowed {
		t.Fatal("4th request should be denied")
	}
	if res.ResetAt.IsZero() {
		t.Fatal("denied result should carry ResetAt")
	}

	if ttl := mr.TTL("test:otp:1.2.3.4"); ttl <= 0 || ttl > 5*time.Minute {
		t.Fatalf("unexpected TTL %v", ttl)
	}

	mr.FastForward(5*time.Minute + time.Second)

	res, err = l.Check(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Check after window: %v", err)
	}
	if !res.Allowed || res.AttemptsLeft != 2 {
		t.Fatalf("after window: %+v, want allowed with 2 left", res)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	l := New(NewRedisStore(rdb, ""), "x", time.Minute, 1)
	res, err := l.Check(context.Background(), "k")
	if err == nil {
		t.Fatal("expected store error")
	}
	if !res.Allowed {
		t.Fatal("store failure should fail open")
	}
}

func TestResultRetryAfter(t *testing.T) {
	now := time.Unix(100, 0)
	r := Result{ResetAt: now.Add(1500 * time.Millisecond)}
	if got := r.RetryAfter(now); got != 2*time.Second {
		t.Fatalf("RetryAfter=%v, want 2s", got)
	}
	if got := (Result{}).RetryAfter(now); got != 0 {
		t.Fatalf("zero ResetAt: RetryAfter=%v", got)
	}
}
