package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of a Check.
type Result struct {
	Allowed      bool
	AttemptsLeft int
	// ResetAt is when the current window ends. Zero when unknown.
	ResetAt time.Time
}

// RetryAfter returns how long until the window resets, rounded up to a second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.ResetAt.IsZero() || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now).Truncate(time.Second) + time.Second
}

// Limiter allows Max requests per key per Window.
type Limiter struct {
	Store  Store
	Name   string
	Window time.Duration
	Max    int
	// Now defaults to time.Now.
	Now func() time.Time
}

// New returns a limiter namespacing its keys with name.
func New(store Store, name string, window time.Duration, max int) *Limiter {
	return &Limiter{Store: store, Name: name, Window: window, Max: max}
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Limiter) key(k string) string {
	return l.Name + ":" + k
}

// Check records a request for key. Calls past Max in the current window are
// not counted and report Allowed=false until the window resets.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	k := l.key(key)

	rec, ok, err := l.Store.Get(ctx, k)
	if err != nil {
		return Result{Allowed: true}, err
	}
	if ok && rec.Count >= int64(l.Max) {
		return Result{Allowed: false, AttemptsLeft: 0, ResetAt: rec.ResetAt}, nil
	}

	rec, err = l.Store.Increment(ctx, k, l.Window)
	if err != nil {
		return Result{Allowed: true}, err
	}
	left := l.Max - int(rec.Count)
	if left < 0 {
		left = 0
	}
	return Result{
		Allowed:      rec.Count <= int64(l.Max),
		AttemptsLeft: left,
		ResetAt:      rec.ResetAt,
	}, nil
}

// Exhaust uses up the remaining budget for key until the current window ends,
// starting a window if none is live.
func (l *Limiter) Exhaust(ctx context.Context, key string) error {
	k := l.key(key)
	rec, ok, err := l.Store.Get(ctx, k)
	if err != nil {
		return err
	}
	if !ok || rec.ResetAt.IsZero() {
		rec.ResetAt = l.now().Add(l.Window)
	}
	rec.Count = int64(l.Max)
	return l.Store.Set(ctx, k, rec)
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.Store.Delete(ctx, l.key(key))
}
