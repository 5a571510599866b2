package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CacheResult tags the outcome of a fast-tier read. Unavailability is data,
// not an error: callers fall through to the durable tier and nothing above
// the store ever sees a cache failure.
type CacheResult int

const (
	CacheHit CacheResult = iota
	CacheMiss
	CacheUnavailable
)

// Cache is the volatile keyed tier. Set and Del are best-effort; none of
// the methods return errors by design.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, CacheResult)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Del(ctx context.Context, key string)
}

// RedisCache backs the fast tier with Redis.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, CacheResult) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, CacheMiss
	}
	if err != nil {
		log.Debug().Err(err).Str("module", "store.cache").Str("key", key).Msg("cache get failed")
		return nil, CacheUnavailable
	}
	return val, CacheHit
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("module", "store.cache").Str("key", key).Msg("cache set failed")
	}
}

func (c *RedisCache) Del(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		log.Debug().Err(err).Str("module", "store.cache").Str("key", key).Msg("cache del failed")
	}
}

func (c *RedisCache) Close() error { return c.rdb.Close() }

// MemoryCache is an in-process fast tier, used when no Redis address is
// configured and by tests.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]memEntry
}

type memEntry struct {
	val     []byte
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]memEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, CacheResult) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || (!e.expires.IsZero() && time.Now().After(e.expires)) {
		return nil, CacheMiss
	}
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, CacheHit
}

func (c *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	stored := make([]byte, len(val))
	copy(stored, val)
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.data[key] = memEntry{val: stored, expires: exp}
	c.mu.Unlock()
}

func (c *MemoryCache) Del(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}
