package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"price-alerts/internal/pricing"
)

// RedisCache persists long-lived price cache entries so restarts do not spend upstream quota.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps client; keys are namespaced with prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// LoadEntry reads a cache entry; a missing key is not an error.
func (c *RedisCache) LoadEntry(ctx context.Context, key string) (pricing.CacheEntry, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return pricing.CacheEntry{}, false, nil
	}
	if err != nil {
		return pricing.CacheEntry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry pricing.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return pricing.CacheEntry{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return entry, true, nil
}

// SaveEntry writes a cache entry; ttl <= 0 keeps it without expiry.
func (c *RedisCache) SaveEntry(ctx context.Context, key string, entry pricing.CacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ pricing.EntryStore = (*RedisCache)(nil)
