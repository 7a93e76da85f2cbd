package resolver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the resolver's device-identity → Result memo, TTL ≤ 60s
// (spec.md §4.2). Implementations may be a no-op (NewNoopCache) since the
// spec explicitly allows omitting the cache.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, val Result, ttl time.Duration)
	// Flush invalidates every cached entry, used on an out-of-band
	// admin cache-flush signal (spec.md §4.2).
	Flush(ctx context.Context)
}

// noopCache disables caching entirely.
type noopCache struct{}

// NewNoopCache returns a Cache that never retains anything, used when
// resolver.cache_ttl_s=0 and no Redis address is configured.
func NewNoopCache() Cache { return noopCache{} }

func (noopCache) Get(context.Context, string) (Result, bool)  { return Result{}, false }
func (noopCache) Set(context.Context, string, Result, time.Duration) {}
func (noopCache) Flush(context.Context)                        {}

// memoryCache is the in-process fallback used when Redis is not
// configured (grounded on the teacher's preference for a singleton client
// with a local fallback — packages/apisix-go-runner/plugins/authz.go).
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	val       Result
	expiresAt time.Time
}

// NewMemoryCache returns a process-local cache with manual expiry checks
// on read; there is no background sweep, matching the low-churn nature of
// device-identity lookups.
func NewMemoryCache() Cache {
	return &memoryCache{entries: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(_ context.Context, key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.val, true
}

func (c *memoryCache) Set(_ context.Context, key string, val Result, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{val: val, expiresAt: time.Now().Add(ttl)}
}

func (c *memoryCache) Flush(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
}

// redisCache backs the resolver cache with go-redis, following the
// singleton-client pattern in packages/apisix-go-runner/plugins/authz.go.
type redisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (Result, bool) {
	raw, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		return Result{}, false
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return Result{}, false
	}
	return r, true
}

func (c *redisCache) Set(ctx context.Context, key string, val Result, ttl time.Duration) {
	raw, err := json.Marshal(val)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(key), raw, ttl)
}

func (c *redisCache) Flush(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}

const cacheKeyPrefix = "amy:resolver:"

func cacheKey(key string) string { return cacheKeyPrefix + key }
