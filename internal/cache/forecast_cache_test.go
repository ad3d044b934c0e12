package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniruddhAgrahari/smartstock/internal/config"
	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

func records() []domain.DemandRecord {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	return []domain.DemandRecord{
		{SKU: "A", Timestamp: day(1), Quantity: 10},
		{SKU: "A", Timestamp: day(2), Quantity: 12},
		{SKU: "A", Timestamp: day(3), Quantity: 9},
	}
}

func TestForecastKey(t *testing.T) {
	recs := records()
	key := ForecastKey("A", recs, 7, "fp")

	reversed := []domain.DemandRecord{recs[2], recs[1], recs[0]}
	assert.Equal(t, key, ForecastKey("A", reversed, 7, "fp"), "record order must not matter")

	assert.NotEqual(t, key, ForecastKey("A", recs, 14, "fp"))
	assert.NotEqual(t, key, ForecastKey("A", recs, 7, "other"))

	changed := append([]domain.DemandRecord(nil), recs...)
	changed[1].Quantity = 13
	assert.NotEqual(t, key, ForecastKey("A", changed, 7, "fp"))
	assert.Contains(t, key, "forecast:A:7:")
}

func TestLRUForecastCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRUForecastCache(2, time.Minute)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", domain.Forecast{SKU: "A", Model: "arima"}))
	fc, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "arima", fc.Model)

	require.NoError(t, c.Set(ctx, "b", domain.Forecast{SKU: "B"}))
	require.NoError(t, c.Set(ctx, "c", domain.Forecast{SKU: "C"}))
	_, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok, "least recently used entry is evicted")

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "c")
	assert.False(t, ok, "expired entry is a miss")

	hits, misses := c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(3), misses)

	require.NoError(t, c.InvalidateAll(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestTieredForecastCacheBackfills(t *testing.T) {
	ctx := context.Background()
	l1, err := NewLRUForecastCache(4, 0)
	require.NoError(t, err)
	l2, err := NewLRUForecastCache(4, 0)
	require.NoError(t, err)
	tiers := tieredForecastCache{l1, l2}

	require.NoError(t, l2.Set(ctx, "k", domain.Forecast{SKU: "A"}))
	fc, ok, err := tiers.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", fc.SKU)

	_, ok, _ = l1.Get(ctx, "k")
	assert.True(t, ok, "hit in the slow tier fills the fast one")

	require.NoError(t, tiers.InvalidateAll(ctx))
	_, ok, _ = tiers.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNewForecastCache(t *testing.T) {
	c, err := NewForecastCache(config.CacheConfig{})
	require.NoError(t, err)
	assert.IsType(t, &noopForecastCache{}, c)

	c, err = NewForecastCache(config.CacheConfig{LocalSize: 8})
	require.NoError(t, err)
	assert.IsType(t, &LRUForecastCache{}, c)

	noop := NewNoopForecastCache()
	_, ok, err := noop.Get(context.Background(), "k")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{RedisHost: "cache", RedisPort: "6380", RedisDB: 2})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	opts, err = buildRedisOptions(config.CacheConfig{RedisURL: "redis://:secret@example.com:6379/1"})
	require.NoError(t, err)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 1, opts.DB)

	_, err = buildRedisOptions(config.CacheConfig{RedisURL: "http://nope"})
	assert.Error(t, err)

	assert.Equal(t, defaultCacheTTL, ttlFrom(config.CacheConfig{}))
	assert.Equal(t, 5*time.Second, ttlFrom(config.CacheConfig{ForecastTTLSeconds: 5}))
}

func TestRedisForecastCacheInvalidate(t *testing.T) {
	url := os.Getenv("SMARTSTOCK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SMARTSTOCK_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, ttl, err := newRedisClient(config.CacheConfig{RedisURL: url})
	require.NoError(t, err)
	defer client.Close()

	c := &redisForecastCache{client: client, ttl: ttl}
	for i := 0; i < 250; i++ {
		require.NoError(t, c.Set(ctx, ForecastKey(fmt.Sprint("S", i), records(), 7, "fp"), domain.Forecast{SKU: "A"}))
	}
	require.NoError(t, client.Set(ctx, "other:key", "keep", time.Minute).Err())

	removed, err := purgePrefix(ctx, client, forecastKeyPrefix+":", 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, int64(250))

	_, ok, err := c.Get(ctx, ForecastKey("S1", records(), 7, "fp"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "keep", client.Get(ctx, "other:key").Val())
	client.Del(ctx, "other:key")
}
