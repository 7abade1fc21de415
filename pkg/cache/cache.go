package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zoff-tech/go-payouts/pkg/config"
)

// ErrMiss is returned by Get when the key does not exist or has expired.
var ErrMiss = errors.New("cache miss")

// Cache is a byte-oriented key/value store with optional expiry. A zero ttl keeps
// the value until it is deleted.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisClientCreator builds the redis client used by NewCache.
type RedisClientCreator func(cfg config.CacheSettings) *redis.Client

// NewRedisClient is swapped in tests.
var NewRedisClient RedisClientCreator = func(cfg config.CacheSettings) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        50,
		MinIdleConns:    5,
		ConnMaxIdleTime: 5 * time.Minute,
		DialTimeout:     time.Second,
		ReadTimeout:     500 * time.Millisecond,
		WriteTimeout:    500 * time.Millisecond,
		MaxRetries:      2,
	})
}

// NewCache returns the cache selected by cfg.Type.
func NewCache(ctx context.Context, cfg config.CacheSettings) (Cache, error) {
	switch cfg.Type {
	case "redis":
		client := NewRedisClient(cfg)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisCache(client), nil
	case "memory":
		return NewMemoryCache(), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
