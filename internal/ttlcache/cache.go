// Package ttlcache provides a small key-value cache with per-entry expiry.
// The in-memory implementation is process-local; a shared backend can be
// swapped in behind the Cache interface.
package ttlcache

import (
	"context"
	"sync"
	"time"
)

// Cache is a key-value store whose entries expire after a time-to-live.
type Cache[K comparable, V any] interface {
	// Get returns the value for key if it is present and not expired.
	Get(key K) (V, bool)

	// Set stores value under key, replacing any previous entry.
	Set(key K, value V, ttl time.Duration)

	// SetIfAbsent stores value only if key is missing or expired.
	// It reports whether the value was stored.
	SetIfAbsent(key K, value V, ttl time.Duration) bool

	// Delete removes key.
	Delete(key K)
}

type entry[V any] struct {
	value  V
	expiry time.Time
}

// Memory is a map-backed Cache safe for concurrent use. Expired entries are
// dropped lazily on access, and optionally by a janitor started with
// StartCleanup.
type Memory[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	now     func() time.Time
}

// Option configures a Memory cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewMemory creates an empty in-memory cache.
func NewMemory[K comparable, V any](opts ...Option) *Memory[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Memory[K, V]{
		entries: make(map[K]entry[V]),
		now:     o.now,
	}
}

// an entry set at T with ttl d is live for now in [T, T+d).
func (e entry[V]) expired(now time.Time) bool {
	return !now.Before(e.expiry)
}

// Get implements Cache.
func (c *Memory[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if e.expired(c.now()) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := c.entries[key]; ok && cur.expired(c.now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set implements Cache.
func (c *Memory[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiry: c.now().Add(ttl)}
}

// SetIfAbsent implements Cache.
func (c *Memory[K, V]) SetIfAbsent(key K, value V, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok && !e.expired(now) {
		return false
	}
	c.entries[key] = entry[V]{value: value, expiry: now.Add(ttl)}
	return true
}

// Delete implements Cache.
func (c *Memory[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, including expired ones not yet
// swept.
func (c *Memory[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Memory[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// StartCleanup sweeps expired entries every interval until ctx is done.
func (c *Memory[K, V]) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

var _ Cache[string, struct{}] = (*Memory[string, struct{}])(nil)
