package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoff-tech/go-payouts/pkg/config"
	"github.com/zoff-tech/go-payouts/pkg/payout"
)

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("a"), time.Second))
	require.NoError(t, c.Set(ctx, "forever", []byte("b"), 0))

	v, err := c.Get(ctx, "short")
	assert.NoError(t, err)
	assert.Equal(t, []byte("a"), v)

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrMiss)

	v, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
	assert.Equal(t, []byte("b"), v)

	require.NoError(t, c.Delete(ctx, "forever"))
	_, err = c.Get(ctx, "forever")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db)

	mock.ExpectSet("token", "value", time.Minute).SetVal("OK")
	mock.ExpectGet("token").SetVal("value")
	mock.ExpectGet("missing").RedisNil()
	mock.ExpectGet("broken").SetErr(errors.New("connection reset"))
	mock.ExpectDel("token").SetVal(1)

	assert.NoError(t, c.Set(ctx, "token", []byte("value"), time.Minute))

	v, err := c.Get(ctx, "token")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), v)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	_, err = c.Get(ctx, "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)

	assert.NoError(t, c.Delete(ctx, "token"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(context.Background(), config.CacheSettings{Type: "memory"})
	assert.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	c, err = NewCache(context.Background(), config.CacheSettings{Type: "memcached"})
	assert.Nil(t, c)
	assert.EqualError(t, err, "unsupported cache type: memcached")
}

func TestNewCache_Redis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	original := NewRedisClient
	NewRedisClient = func(cfg config.CacheSettings) *redis.Client { return db }
	defer func() { NewRedisClient = original }()

	mock.ExpectPing().SetVal("PONG")

	c, err := NewCache(context.Background(), config.CacheSettings{Type: "redis", Addr: "localhost:6379"})
	assert.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocker(NewMemoryCache(), time.Minute)
	data := &payout.MethodData{Bank: &payout.BankDetails{IBAN: "DE89370400440532013000", BankCountry: "DE"}}

	token, err := l.StoreTemp(ctx, data)
	require.NoError(t, err)
	assert.Contains(t, token, "temporary_token_")

	got, err := l.LoadTemp(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	methodID, err := l.Save(ctx, "merchant_1", data)
	require.NoError(t, err)
	got, err = l.Load(ctx, "merchant_1", methodID)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = l.Load(ctx, "merchant_2", methodID)
	assert.ErrorIs(t, err, ErrMethodDataNotFound)
}
