// Package kv provides a small keyed store abstraction with in-memory
// and Redis backends. Values are stored as JSON in Redis.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a generic keyed value store.
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Memory is the in-process Store used by default and in tests.
type Memory[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewMemory returns an empty in-memory store.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{items: make(map[string]T)}
}

// Get returns the value for key and whether it exists.
func (m *Memory[T]) Get(_ context.Context, key string) (T, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *Memory[T]) Set(_ context.Context, key string, value T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

// Delete removes key.
func (m *Memory[T]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Keys returns all stored keys.
func (m *Memory[T]) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys, nil
}

// Redis is a Store backed by a Redis hashless key namespace.
type Redis[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis returns a Redis-backed store. Keys are namespaced with
// prefix; a zero ttl means no expiry.
func NewRedis[T any](client *redis.Client, prefix string, ttl time.Duration) *Redis[T] {
	return &Redis[T]{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis[T]) key(k string) string {
	return r.prefix + ":" + k
}

// Get returns the value for key and whether it exists.
func (r *Redis[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var value T
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, refreshing the TTL.
func (r *Redis[T]) Set(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *Redis[T]) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys returns all keys in the namespace, with the prefix stripped.
func (r *Redis[T]) Keys(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	pattern := r.prefix + ":*"
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, k[len(r.prefix)+1:])
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
