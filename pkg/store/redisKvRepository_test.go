package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoff-tech/go-payouts/pkg/payout"
)

func mustMarshal(t *testing.T, v any) []byte {
	raw, err := sonic.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestRedisKvRepository_WriteThrough(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	fallback := NewMemoryRepository()
	fallback.now = func() time.Time { return testTime }
	repo := NewRedisKvRepository(fallback, client, time.Hour)

	po := samplePayout()
	mock.ExpectSet("mid_m1_po_po_1", mustMarshal(t, po), time.Hour).SetVal("OK")

	rec, err := repo.InsertPayout(ctx, po)
	require.NoError(t, err)

	stored, err := fallback.FindPayout(ctx, "m1", "po_1")
	require.NoError(t, err)
	assert.Equal(t, rec.PayoutID, stored.PayoutID)

	status := payout.StatusPending
	updated := *po
	updated.Status = payout.StatusPending
	mock.ExpectSet("mid_m1_po_po_1", mustMarshal(t, &updated), time.Hour).SetVal("OK")

	rec, err = repo.UpdatePayout(ctx, rec, payout.PayoutUpdate{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, payout.StatusPending, rec.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisKvRepository_ReadsFromRedis(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	repo := NewRedisKvRepository(NewMemoryRepository(), client, time.Hour)

	attempt := &payout.PayoutAttempt{PayoutAttemptID: "po_9_1", PayoutID: "po_9", MerchantID: "m1", Connector: "wise", Status: payout.StatusPending}
	mock.ExpectGet("mid_m1_poa_po_9_1").SetVal(string(mustMarshal(t, attempt)))

	rec, err := repo.FindAttempt(ctx, "m1", "po_9_1")
	require.NoError(t, err)
	assert.Equal(t, "wise", rec.Connector)
	assert.Equal(t, payout.StatusPending, rec.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisKvRepository_MissWarmsRedis(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	fallback := NewMemoryRepository()
	repo := NewRedisKvRepository(fallback, client, time.Hour)

	po := samplePayout()
	_, err := fallback.InsertPayout(ctx, po)
	require.NoError(t, err)

	mock.ExpectGet("mid_m1_po_po_1").RedisNil()
	mock.ExpectSet("mid_m1_po_po_1", mustMarshal(t, po), time.Hour).SetVal("OK")
	mock.ExpectGet("mid_m1_po_missing").RedisNil()

	rec, err := repo.FindPayout(ctx, "m1", "po_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rec.Amount)

	_, err = repo.FindPayout(ctx, "m1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisKvRepository_RedisDownUsesFallback(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	fallback := NewMemoryRepository()
	repo := NewRedisKvRepository(fallback, client, time.Hour)

	link := &payout.PayoutLink{LinkID: "po_1", MerchantID: "m1", LinkStatus: payout.LinkInitiated, URL: "https://pay.example.com/payout_link/m1/po_1"}
	_, err := fallback.InsertPayoutLink(ctx, link)
	require.NoError(t, err)

	mock.ExpectGet("payout_link_po_1").SetErr(errors.New("connection refused"))
	mock.ExpectSet("payout_link_po_1", mustMarshal(t, link), time.Hour).SetErr(errors.New("connection refused"))

	rec, err := repo.FindPayoutLink(ctx, "po_1")
	require.NoError(t, err)
	assert.Equal(t, payout.LinkInitiated, rec.LinkStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisKvRepository_WriteFailure(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	repo := NewRedisKvRepository(NewMemoryRepository(), client, time.Hour)

	a := &payout.PayoutAttempt{PayoutAttemptID: "po_1_1", PayoutID: "po_1", MerchantID: "m1", Status: payout.StatusRequiresCreation}
	mock.ExpectSet("mid_m1_poa_po_1_1", mustMarshal(t, a), time.Hour).SetErr(errors.New("OOM"))

	_, err := repo.InsertAttempt(ctx, a)
	assert.ErrorContains(t, err, "writing mid_m1_poa_po_1_1 to redis")
	assert.NoError(t, mock.ExpectationsWereMet())
}
