package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/telemetry"
)

// RedisKvRepository serves the redis_kv storage scheme. Payout, attempt and link
// records are written through to the fallback backend and mirrored in redis,
// which answers point reads. Everything else goes to the fallback.
type RedisKvRepository struct {
	Backend
	client *redis.Client
	ttl    time.Duration
}

func NewRedisKvRepository(fallback Backend, client *redis.Client, ttl time.Duration) *RedisKvRepository {
	return &RedisKvRepository{Backend: fallback, client: client, ttl: ttl}
}

func payoutKvKey(merchantID, payoutID string) string {
	return fmt.Sprintf("mid_%s_po_%s", merchantID, payoutID)
}

func attemptKvKey(merchantID, attemptID string) string {
	return fmt.Sprintf("mid_%s_poa_%s", merchantID, attemptID)
}

func linkKvKey(linkID string) string {
	return "payout_link_" + linkID
}

func (r *RedisKvRepository) FindPayout(ctx context.Context, merchantID, payoutID string) (*payout.Payout, error) {
	return kvFind(ctx, r, payoutKvKey(merchantID, payoutID), func() (*payout.Payout, error) {
		return r.Backend.FindPayout(ctx, merchantID, payoutID)
	})
}

func (r *RedisKvRepository) InsertPayout(ctx context.Context, p *payout.Payout) (*payout.Payout, error) {
	rec, err := r.Backend.InsertPayout(ctx, p)
	if err != nil {
		return nil, err
	}
	return rec, r.put(ctx, payoutKvKey(rec.MerchantID, rec.PayoutID), rec)
}

func (r *RedisKvRepository) UpdatePayout(ctx context.Context, current *payout.Payout, upd payout.PayoutUpdate) (*payout.Payout, error) {
	rec, err := r.Backend.UpdatePayout(ctx, current, upd)
	if err != nil {
		return nil, err
	}
	return rec, r.put(ctx, payoutKvKey(rec.MerchantID, rec.PayoutID), rec)
}

func (r *RedisKvRepository) FindAttempt(ctx context.Context, merchantID, attemptID string) (*payout.PayoutAttempt, error) {
	return kvFind(ctx, r, attemptKvKey(merchantID, attemptID), func() (*payout.PayoutAttempt, error) {
		return r.Backend.FindAttempt(ctx, merchantID, attemptID)
	})
}

func (r *RedisKvRepository) InsertAttempt(ctx context.Context, a *payout.PayoutAttempt) (*payout.PayoutAttempt, error) {
	rec, err := r.Backend.InsertAttempt(ctx, a)
	if err != nil {
		return nil, err
	}
	return rec, r.put(ctx, attemptKvKey(rec.MerchantID, rec.PayoutAttemptID), rec)
}

func (r *RedisKvRepository) UpdateAttempt(ctx context.Context, current *payout.PayoutAttempt, upd payout.AttemptUpdate) (*payout.PayoutAttempt, error) {
	rec, err := r.Backend.UpdateAttempt(ctx, current, upd)
	if err != nil {
		return nil, err
	}
	return rec, r.put(ctx, attemptKvKey(rec.MerchantID, rec.PayoutAttemptID), rec)
}

func (r *RedisKvRepository) InsertPayoutLink(ctx context.Context, l *payout.PayoutLink) (*payout.PayoutLink, error) {
	rec, err := r.Backend.InsertPayoutLink(ctx, l)
	if err != nil {
		return nil, err
	}
	return rec, r.put(ctx, linkKvKey(rec.LinkID), rec)
}

func (r *RedisKvRepository) UpdatePayoutLink(ctx context.Context, current *payout.PayoutLink, status payout.LinkStatus) (*payout.PayoutLink, error) {
	rec, err := r.Backend.UpdatePayoutLink(ctx, current, status)
	if err != nil {
		return nil, err
	}
	return rec, r.put(ctx, linkKvKey(rec.LinkID), rec)
}

func (r *RedisKvRepository) FindPayoutLink(ctx context.Context, linkID string) (*payout.PayoutLink, error) {
	return kvFind(ctx, r, linkKvKey(linkID), func() (*payout.PayoutLink, error) {
		return r.Backend.FindPayoutLink(ctx, linkID)
	})
}

func (r *RedisKvRepository) put(ctx context.Context, key string, v any) error {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("writing %s to redis: %w", key, err)
	}
	return nil
}

// kvFind reads key from redis and falls back to load on a miss, warming redis
// with the result. Redis failures other than a miss degrade to load.
func kvFind[T any](ctx context.Context, r *RedisKvRepository, key string, load func() (*T, error)) (*T, error) {
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "KvFind")
	defer span.End()
	start := time.Now()

	raw, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		var rec T
		if err := sonic.Unmarshal(raw, &rec); err == nil {
			telemetry.AddDBStats(span, "redis", "GET "+key, 1, time.Since(start))
			return &rec, nil
		}
		log.Printf("Discarding undecodable kv record %s", key)
	} else if !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		log.Printf("Redis read of %s failed, using fallback store: %v", key, err)
	}

	rec, err := load()
	if err != nil {
		return nil, err
	}
	if err := r.put(ctx, key, rec); err != nil {
		log.Printf("Failed to warm kv record %s: %v", key, err)
	}
	return rec, nil
}
