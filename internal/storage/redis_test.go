package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-alerts/internal/pricing"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "pricewatch:"), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	entry := pricing.CacheEntry{
		Price:       decimal.RequireFromString("72015.40"),
		RefreshedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		Source:      "metalprice",
	}
	require.NoError(t, cache.SaveEntry(ctx, "price:GOLD", entry, time.Hour))
	assert.True(t, mr.Exists("pricewatch:price:GOLD"))

	got, ok, err := cache.LoadEntry(ctx, "price:GOLD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Price.Equal(entry.Price))
	assert.True(t, got.RefreshedAt.Equal(entry.RefreshedAt))
	assert.Equal(t, "metalprice", got.Source)
}

func TestRedisCacheMissAndExpiry(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	_, ok, err := cache.LoadEntry(ctx, "fx:USDINR")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.SaveEntry(ctx, "fx:USDINR", pricing.CacheEntry{Price: decimal.NewFromInt(83)}, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err = cache.LoadEntry(ctx, "fx:USDINR")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set("pricewatch:price:GOLD", "{not json"))

	_, _, err := cache.LoadEntry(ctx, "price:GOLD")
	assert.Error(t, err)
}
