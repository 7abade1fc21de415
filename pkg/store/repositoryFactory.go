package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zoff-tech/go-payouts/pkg/config"
	"github.com/zoff-tech/go-payouts/pkg/payout"

	_ "github.com/lib/pq" // PostgreSQL driver
)

var sqlOpen = sql.Open

// NewBackend returns the primary payout backend selected by cfg.Type.
func NewBackend(cfg config.DbSettings) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		db, err := sqlOpen("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewPostgresRepository(db), nil
	case "memory":
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported DB type: %s", cfg.Type)
	}
}

// NewRepository builds the PayoutStore. When kv is non-nil the redis_kv storage
// scheme is served by a RedisKvRepository in front of the primary backend;
// otherwise redis_kv merchants fall back to the primary.
func NewRepository(ctx context.Context, cfg config.DbSettings, kv *redis.Client, kvTTL time.Duration) (*Router, error) {
	primary, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	if kv == nil {
		log.Printf("No redis client configured, %s records will use the %s store", payout.StorageRedisKv, cfg.Type)
		return NewRouter(primary), nil
	}
	if err := kv.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRouter(primary, WithBackend(payout.StorageRedisKv, NewRedisKvRepository(primary, kv, kvTTL))), nil
}
