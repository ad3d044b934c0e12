package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AniruddhAgrahari/smartstock/internal/config"
)

const defaultCacheTTL = time.Hour

func newRedisClient(cfg config.CacheConfig) (*redis.Client, time.Duration, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, 0, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, 0, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, ttlFrom(cfg), nil
}

func ttlFrom(cfg config.CacheConfig) time.Duration {
	ttl := time.Duration(cfg.ForecastTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return ttl
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

// purgePrefix unlinks every key under prefix, batchSize keys per round trip,
// and returns how many were removed.
func purgePrefix(ctx context.Context, client *redis.Client, prefix string, batchSize int) (int64, error) {
	iter := client.Scan(ctx, 0, prefix+"*", int64(batchSize)).Iterator()
	batch := make([]string, 0, batchSize)
	var removed int64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := client.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis unlink failed: %w", err)
		}
		removed += n
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan failed: %w", err)
	}
	return removed, flush()
}
