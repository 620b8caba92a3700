package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const (
	keyPrefix      = "farm:"
	staleKeyPrefix = "stale:"
	maxRelativeExp = 30 * 24 * 60 * 60 // memcached treats larger values as unix time
)

// envelope records when a value was stored so stale reads can check its age.
type envelope[T any] struct {
	StoredAt time.Time `json:"storedAt"`
	Value    T         `json:"value"`
}

// MemcachedCache implements Cache using memcached. Each Set writes the fresh key
// with the caller's TTL and a stale copy with staleTTL.
type MemcachedCache[T any] struct {
	client    *memcache.Client
	namespace string
	staleTTL  time.Duration
}

// NewMemcachedClient builds a client for a comma-separated server list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcachedClient(addrs string, timeout time.Duration, maxIdleConns int) *memcache.Client {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return client
}

// NewMemcachedCache creates a cache over client. namespace separates payload kinds
// sharing one server (e.g. "current", "forecast").
func NewMemcachedCache[T any](client *memcache.Client, namespace string, staleTTL time.Duration) *MemcachedCache[T] {
	return &MemcachedCache[T]{client: client, namespace: namespace, staleTTL: staleTTL}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key builds a memcached-safe key: no spaces or control characters, at most 250 bytes.
func (c *MemcachedCache[T]) key(prefix, k string) string {
	full := keyPrefix + prefix + c.namespace + ":" + strings.ReplaceAll(k, " ", "_")
	if len(full) > 250 {
		full = full[:250]
	}
	return full
}

func (c *MemcachedCache[T]) read(ctx context.Context, key string) (envelope[T], bool, error) {
	var env envelope[T]
	if ctx.Err() != nil {
		return env, false, ctx.Err()
	}
	item, err := c.client.Get(key)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return env, false, nil
		}
		return env, false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal(item.Value, &env); err != nil {
		return env, false, fmt.Errorf("cache unmarshal: %w", err)
	}
	return env, true, nil
}

// Get returns false, nil on a miss and false, err on a backend error.
func (c *MemcachedCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	env, ok, err := c.read(ctx, c.key("", key))
	return env.Value, ok, err
}

func (c *MemcachedCache[T]) GetStale(ctx context.Context, key string, maxAge time.Duration) (T, bool, error) {
	var zero T
	env, ok, err := c.read(ctx, c.key(staleKeyPrefix, key))
	if err != nil {
		return zero, false, err
	}
	if !ok {
		// no stale copy is written when staleTTL <= ttl
		if env, ok, err = c.read(ctx, c.key("", key)); err != nil || !ok {
			return zero, false, err
		}
	}
	if time.Since(env.StoredAt) > maxAge {
		return zero, false, nil
	}
	return env.Value, true, nil
}

func (c *MemcachedCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(envelope[T]{StoredAt: time.Now(), Value: value})
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(&memcache.Item{
		Key:        c.key("", key),
		Value:      raw,
		Expiration: expiration(ttl),
	}); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	if c.staleTTL > ttl {
		if err := c.client.Set(&memcache.Item{
			Key:        c.key(staleKeyPrefix, key),
			Value:      raw,
			Expiration: expiration(c.staleTTL),
		}); err != nil {
			return fmt.Errorf("cache set stale: %w", err)
		}
	}
	return nil
}

func expiration(ttl time.Duration) int32 {
	sec := int32(ttl.Seconds())
	if sec <= 0 || sec > maxRelativeExp {
		return 3600
	}
	return sec
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache[T]) Ping() error {
	return c.client.Ping()
}
