package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

// LRUForecastCache is a size-bounded in-process forecast cache with TTL
// expiration. It is safe for concurrent use.
type LRUForecastCache struct {
	cache *lru.Cache[string, ttlEntry]
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

type ttlEntry struct {
	forecast  domain.Forecast
	expiresAt time.Time
}

// NewLRUForecastCache creates a cache holding at most size forecasts. A zero
// ttl never expires entries.
func NewLRUForecastCache(size int, ttl time.Duration) (*LRUForecastCache, error) {
	c, err := lru.New[string, ttlEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUForecastCache{cache: c, ttl: ttl, now: time.Now}, nil
}

func (c *LRUForecastCache) Get(_ context.Context, key string) (domain.Forecast, bool, error) {
	entry, ok := c.cache.Get(key)
	if ok && c.ttl > 0 && c.now().After(entry.expiresAt) {
		c.cache.Remove(key)
		ok = false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok {
		c.misses++
		return domain.Forecast{}, false, nil
	}
	c.hits++
	return entry.forecast, true, nil
}

func (c *LRUForecastCache) Set(_ context.Context, key string, fc domain.Forecast) error {
	entry := ttlEntry{forecast: fc}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.cache.Add(key, entry)
	return nil
}

func (c *LRUForecastCache) InvalidateAll(context.Context) error {
	c.cache.Purge()
	return nil
}

// Stats returns hit and miss counts.
func (c *LRUForecastCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached forecasts, including expired ones not yet
// evicted.
func (c *LRUForecastCache) Len() int {
	return c.cache.Len()
}
