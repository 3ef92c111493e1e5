package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FlagStore records one-shot markers that expire on their own.
// SetOnce returns true only for the first caller within the TTL.
type FlagStore interface {
	SetOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// NewFlagStore picks Redis when a client is available and memory otherwise.
func NewFlagStore(r *Redis, prefix string) FlagStore {
	if r.Configured() {
		return NewRedisFlagStore(r.Client, prefix)
	}
	return NewMemoryFlagStore()
}

// RedisFlagStore shares flags between replicas through SETNX.
type RedisFlagStore struct {
	client *redis.Client
	prefix string
}

// NewRedisFlagStore builds a Redis-backed flag store.
func NewRedisFlagStore(client *redis.Client, prefix string) *RedisFlagStore {
	return &RedisFlagStore{client: client, prefix: prefix}
}

func (s *RedisFlagStore) SetOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// MemoryFlagStore keeps flags in process.
type MemoryFlagStore struct {
	mu    sync.Mutex
	flags map[string]time.Time
	now   func() time.Time
}

// NewMemoryFlagStore builds an empty in-process flag store.
func NewMemoryFlagStore() *MemoryFlagStore {
	return &MemoryFlagStore{flags: make(map[string]time.Time), now: time.Now}
}

// SetClock overrides the time source.
func (s *MemoryFlagStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryFlagStore) SetOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, expires := range s.flags {
		if !now.Before(expires) {
			delete(s.flags, k)
		}
	}
	if _, exists := s.flags[key]; exists {
		return false, nil
	}
	s.flags[key] = now.Add(ttl)
	return true, nil
}
