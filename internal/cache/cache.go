package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cache stores provider payloads with a TTL. Get returns only fresh entries;
// GetStale returns an entry stored within maxAge even after its TTL lapsed, for
// serving when the upstream is failing.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	GetStale(ctx context.Context, key string, maxAge time.Duration) (T, bool, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-guarded map. Expired entries are kept
// until the stale horizon passes so GetStale can still serve them.
type InMemoryCache[T any] struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	staleHorizon time.Duration
	data         map[string]cacheEntry[T]
}

type cacheEntry[T any] struct {
	value     T
	storedAt  time.Time
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache. staleHorizon bounds how long an
// expired entry is retained; zero drops entries as soon as they expire.
func NewInMemoryCache[T any](staleHorizon time.Duration, clock clockwork.Clock) *InMemoryCache[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryCache[T]{
		clock:        clock,
		staleHorizon: staleHorizon,
		data:         make(map[string]cacheEntry[T]),
	}
}

// Get returns (value, true, nil) on a fresh hit and (zero, false, nil) otherwise.
func (c *InMemoryCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return zero, false, nil
	}
	now := c.clock.Now()
	if now.After(entry.expiresAt) {
		if now.Sub(entry.storedAt) > c.staleHorizon {
			delete(c.data, key)
		}
		return zero, false, nil
	}
	return entry.value, true, nil
}

func (c *InMemoryCache[T]) GetStale(ctx context.Context, key string, maxAge time.Duration) (T, bool, error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return zero, false, nil
	}
	now := c.clock.Now()
	age := now.Sub(entry.storedAt)
	if now.After(entry.expiresAt) && age > c.staleHorizon {
		delete(c.data, key)
		return zero, false, nil
	}
	if age > maxAge {
		return zero, false, nil
	}
	return entry.value, true, nil
}

func (c *InMemoryCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	now := c.clock.Now()
	c.mu.Lock()
	c.data[key] = cacheEntry[T]{
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

// Len returns the number of retained entries.
func (c *InMemoryCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
