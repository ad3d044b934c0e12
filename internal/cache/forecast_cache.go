package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/AniruddhAgrahari/smartstock/internal/config"
	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

const (
	forecastKeyPrefix     = "forecast"
	forecastScanBatchSize = 100
)

// ForecastCache stores finished forecasts keyed by ForecastKey.
type ForecastCache interface {
	Get(ctx context.Context, key string) (domain.Forecast, bool, error)
	Set(ctx context.Context, key string, fc domain.Forecast) error
	InvalidateAll(ctx context.Context) error
}

type redisForecastCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopForecastCache struct{}

// NewForecastCache builds the configured cache: an in-process LRU when
// LocalSize > 0, backed by Redis when caching is enabled.
func NewForecastCache(cfg config.CacheConfig) (ForecastCache, error) {
	var tiers tieredForecastCache
	if cfg.LocalSize > 0 {
		local, err := NewLRUForecastCache(cfg.LocalSize, ttlFrom(cfg))
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, local)
	}
	if cfg.Enabled {
		client, ttl, err := newRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, &redisForecastCache{client: client, ttl: ttl})
	}

	switch len(tiers) {
	case 0:
		return &noopForecastCache{}, nil
	case 1:
		return tiers[0], nil
	}
	return tiers, nil
}

func NewNoopForecastCache() ForecastCache {
	return &noopForecastCache{}
}

// ForecastKey identifies a forecast by SKU, horizon, the forecast-relevant
// settings fingerprint and a digest of the SKU's demand records. Record order
// does not matter.
func ForecastKey(sku string, records []domain.DemandRecord, horizon int, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%d:%s", forecastKeyPrefix, sku, horizon, dataVersion(records, fingerprint))
}

func dataVersion(records []domain.DemandRecord, fingerprint string) string {
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = r.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + strconv.FormatFloat(r.Quantity, 'g', -1, 64)
	}
	sort.Strings(lines)

	h := sha1.New()
	h.Write([]byte(fingerprint))
	for _, l := range lines {
		h.Write([]byte{'\n'})
		h.Write([]byte(l))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *redisForecastCache) Get(ctx context.Context, key string) (domain.Forecast, bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return domain.Forecast{}, false, nil
	}
	if err != nil {
		return domain.Forecast{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	var fc domain.Forecast
	if err := json.Unmarshal(payload, &fc); err != nil {
		return domain.Forecast{}, false, fmt.Errorf("decode forecast cache: %w", err)
	}
	return fc, true, nil
}

func (c *redisForecastCache) Set(ctx context.Context, key string, fc domain.Forecast) error {
	payload, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode forecast cache: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisForecastCache) InvalidateAll(ctx context.Context) error {
	removed, err := purgePrefix(ctx, c.client, forecastKeyPrefix+":", forecastScanBatchSize)
	if err != nil {
		return err
	}
	log.Debug().Int64("keys", removed).Msg("redis forecast cache purged")
	return nil
}

func (n *noopForecastCache) Get(ctx context.Context, key string) (domain.Forecast, bool, error) {
	return domain.Forecast{}, false, nil
}

func (n *noopForecastCache) Set(ctx context.Context, key string, fc domain.Forecast) error {
	return nil
}

func (n *noopForecastCache) InvalidateAll(ctx context.Context) error {
	return nil
}

// tieredForecastCache reads through its tiers in order and back-fills the
// faster ones on a hit further down.
type tieredForecastCache []ForecastCache

func (t tieredForecastCache) Get(ctx context.Context, key string) (domain.Forecast, bool, error) {
	for i, tier := range t {
		fc, ok, err := tier.Get(ctx, key)
		if err != nil {
			return domain.Forecast{}, false, err
		}
		if !ok {
			continue
		}
		for _, faster := range t[:i] {
			if err := faster.Set(ctx, key, fc); err != nil {
				return fc, true, err
			}
		}
		return fc, true, nil
	}
	return domain.Forecast{}, false, nil
}

func (t tieredForecastCache) Set(ctx context.Context, key string, fc domain.Forecast) error {
	for _, tier := range t {
		if err := tier.Set(ctx, key, fc); err != nil {
			return err
		}
	}
	return nil
}

func (t tieredForecastCache) InvalidateAll(ctx context.Context) error {
	for _, tier := range t {
		if err := tier.InvalidateAll(ctx); err != nil {
			return err
		}
	}
	return nil
}
