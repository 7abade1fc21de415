package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/zoff-tech/go-payouts/pkg/payout"
)

// ErrMethodDataNotFound is returned when a token or method id has no stored data.
var ErrMethodDataNotFound = errors.New("payout method data not found")

// Locker keeps payout method data out of the payout records. Temporary entries are
// addressed by an opaque token and expire; saved entries back a recurring
// payout_method_id and do not.
type Locker struct {
	cache   Cache
	tempTTL time.Duration
}

func NewLocker(c Cache, tempTTL time.Duration) *Locker {
	return &Locker{cache: c, tempTTL: tempTTL}
}

func tempKey(token string) string {
	return "payout_method_temp_" + token
}

func savedKey(merchantID, methodID string) string {
	return fmt.Sprintf("payout_method_%s_%s", merchantID, methodID)
}

// StoreTemp stashes method data and returns the token to keep on the attempt.
func (l *Locker) StoreTemp(ctx context.Context, data *payout.MethodData) (string, error) {
	token := "temporary_token_" + uuid.NewString()
	if err := l.put(ctx, tempKey(token), data, l.tempTTL); err != nil {
		return "", err
	}
	return token, nil
}

// LoadTemp resolves a token produced by StoreTemp.
func (l *Locker) LoadTemp(ctx context.Context, token string) (*payout.MethodData, error) {
	return l.get(ctx, tempKey(token))
}

// Save stores method data permanently for recurring payouts and returns its id.
func (l *Locker) Save(ctx context.Context, merchantID string, data *payout.MethodData) (string, error) {
	methodID := "pm_" + uuid.NewString()
	if err := l.put(ctx, savedKey(merchantID, methodID), data, 0); err != nil {
		return "", err
	}
	return methodID, nil
}

// Load resolves a payout_method_id produced by Save.
func (l *Locker) Load(ctx context.Context, merchantID, methodID string) (*payout.MethodData, error) {
	return l.get(ctx, savedKey(merchantID, methodID))
}

func (l *Locker) put(ctx context.Context, key string, data *payout.MethodData, ttl time.Duration) error {
	raw, err := sonic.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding payout method data: %w", err)
	}
	if err := l.cache.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("storing payout method data: %w", err)
	}
	return nil
}

func (l *Locker) get(ctx context.Context, key string) (*payout.MethodData, error) {
	raw, err := l.cache.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return nil, ErrMethodDataNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading payout method data: %w", err)
	}
	var data payout.MethodData
	if err := sonic.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding payout method data: %w", err)
	}
	return &data, nil
}
