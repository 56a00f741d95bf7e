package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps windows as Redis counters with a TTL, so every process
// sharing the Redis instance sees the same counts.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store namespacing its keys with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Record, error) {
	k := s.key(key)
	count, err := s.redis.Incr(ctx, k).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := s.redis.PExpire(ctx, k, window).Err(); err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return Record{Count: 1, ResetAt: time.Now().Add(window)}, nil
	}

	ttl, err := s.redis.PTTL(ctx, k).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ttl < 0 {
		// The first hit's PEXPIRE was lost; restore the window.
		if err := s.redis.PExpire(ctx, k, window).Err(); err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		ttl = window
	}
	return Record{Count: count, ResetAt: time.Now().Add(ttl)}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	k := s.key(key)
	count, err := s.redis.Get(ctx, k).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	ttl, err := s.redis.PTTL(ctx, k).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ttl == -2 {
		return Record{}, false, nil
	}
	rec := Record{Count: count}
	if ttl > 0 {
		rec.ResetAt = time.Now().Add(ttl)
	}
	return rec, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, rec Record) error {
	ttl := time.Until(rec.ResetAt)
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	if err := s.redis.Set(ctx, s.key(key), rec.Count, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
