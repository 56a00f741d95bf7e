package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is how many writes pass between opportunistic purges.
const sweepEvery = 256

// MemoryStore is a process-local Store. It is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	writes  int
	now     func() time.Time
}

// NewMemoryStore returns an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock returns an empty store reading time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     now,
	}
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[key]
	if !ok || now.After(rec.ResetAt) {
		rec = Record{Count: 1, ResetAt: now.Add(window)}
	} else {
		rec.Count++
	}
	s.records[key] = rec
	s.maybeSweep(now)
	return rec, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, false, nil
	}
	if s.now().After(rec.ResetAt) {
		delete(s.records, key)
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = rec
	s.maybeSweep(s.now())
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Sweep removes every record whose window ended before now and returns how
// many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

// Len returns the number of stored records, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) maybeSweep(now time.Time) {
	s.writes++
	if s.writes%sweepEvery == 0 {
		s.sweepLocked(now)
	}
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	n := 0
	for k, rec := range s.records {
		if now.After(rec.ResetAt) {
			delete(s.records, k)
			n++
		}
	}
	return n
}
