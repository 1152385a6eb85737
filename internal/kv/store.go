// Package kv implements the generic key/value blob store contract the
// rule store and incident store are built on (spec §6 "Blob stores"),
// backed by Redis in production with a single-writer advisory lock per
// key via SETNX, following the pack's Redis-backed KV usage.
package kv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes lockKey only if it still holds the token this Lock
// call set, so one writer's unlock can never clear a different writer's
// still-live lock (e.g. after a contention timeout let a stale holder's
// unlock race with a new holder's SetNX).
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Store is the contract every blob-store-backed component (rulestore,
// incident store) consumes: Get/Put a versioned blob plus an advisory
// single-writer lock.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RedisStore is the production Store, a thin wrapper over go-redis.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

// Lock takes a SETNX-based advisory lock on key+":lock", following spec
// §5 "single-writer advisory lock; readers never block writers". Callers
// of Put serialize through this; reads never take the lock. The lock value
// is a per-call token so unlock only clears the key if this call is still
// the holder, and contention is retried (not assumed-acquired) until ttl
// elapses.
func (s *RedisStore) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lockKey := key + ":lock"
	token := uuid.NewString()
	deadline := time.Now().Add(ttl)

	for {
		ok, err := s.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("kv: lock contention on %q: timed out after %s", key, ttl)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ttl / 10):
		}
	}

	unlock := func() {
		s.client.Eval(ctx, unlockScript, []string{lockKey}, token)
	}
	return unlock, nil
}

// MemoryStore is an in-memory fake Store for tests and local dev without
// Redis, mirroring RedisStore's semantics with a plain mutex.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	lock sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.data[key]
	return val, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStore) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	s.lock.Lock()
	return func() { s.lock.Unlock() }, nil
}
