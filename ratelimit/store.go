// Package ratelimit implements fixed-window request counters behind an
// injectable Store, so the counting state is owned by whoever constructs it.
//
// The limiter is advisory throttling. MemoryStore counts per process; RedisStore
// shares counts between processes.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps failures of the backing store.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Record is the state of one key's current window.
type Record struct {
	Count   int64
	ResetAt time.Time
}

// Store persists window records keyed by client identifier.
type Store interface {
	// Increment records a hit. A missing or expired record starts a new window
	// with Count=1 ending after window. The check-and-increment is atomic.
	Increment(ctx context.Context, key string, window time.Duration) (Record, error)
	// Get returns the live record for key. Expired records are reported missing.
	Get(ctx context.Context, key string) (Record, bool, error)
	// Set overwrites the record for key until rec.ResetAt.
	Set(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
}
