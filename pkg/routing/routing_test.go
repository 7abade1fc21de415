package routing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/store"
)

func TestDecide(t *testing.T) {
	profile := &payout.BusinessProfile{
		ProfileID:               "pro_1",
		DefaultPayoutConnectors: []string{"wise", "adyen", "paypal"},
	}

	tests := []struct {
		name     string
		req      Request
		wantKind Kind
		want     []string
		wantErr  error
	}{
		{
			name:     "explicit connector",
			req:      Request{Connector: "adyen", Profile: profile},
			wantKind: PreDetermined,
			want:     []string{"adyen"},
		},
		{
			name:     "straight through priority",
			req:      Request{Algorithm: json.RawMessage(`{"type":"priority","data":["paypal","wise"]}`), Profile: profile},
			wantKind: Retryable,
			want:     []string{"paypal", "wise"},
		},
		{
			name:     "straight through single",
			req:      Request{Algorithm: json.RawMessage(`{"type":"single","data":"wise"}`)},
			wantKind: PreDetermined,
			want:     []string{"wise"},
		},
		{
			name:     "profile defaults keep order",
			req:      Request{Profile: profile},
			wantKind: Retryable,
			want:     []string{"wise", "adyen", "paypal"},
		},
		{
			name:     "profile algorithm wins over defaults",
			req:      Request{Profile: &payout.BusinessProfile{PayoutRoutingAlgorithm: json.RawMessage(`{"type":"single","data":"adyen"}`), DefaultPayoutConnectors: []string{"wise"}}},
			wantKind: PreDetermined,
			want:     []string{"adyen"},
		},
		{
			name:     "eligible allowlist filters in order",
			req:      Request{Profile: profile, EligibleConnectors: []string{"paypal", "wise"}},
			wantKind: Retryable,
			want:     []string{"wise", "paypal"},
		},
		{
			name:    "allowlist removes everything",
			req:     Request{Connector: "adyen", EligibleConnectors: []string{"wise"}},
			wantErr: ErrNoConnector,
		},
		{
			name:    "nothing configured",
			req:     Request{},
			wantErr: ErrNoConnector,
		},
		{
			name:    "session routing",
			req:     Request{Session: true, Profile: profile},
			wantErr: ErrSessionMultiple,
		},
		{
			name:    "malformed algorithm",
			req:     Request{Algorithm: json.RawMessage(`{"type":"volume_split","data":[]}`)},
			wantErr: ErrInvalidAlgorithm,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := Decide(tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, ct)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, ct.Kind)
			assert.Equal(t, tt.want, ct.Connectors)
		})
	}
}

func TestCallTypeNext(t *testing.T) {
	ct := &CallType{Kind: Retryable, Connectors: []string{"wise", "adyen"}}

	name, ok := ct.Next()
	assert.True(t, ok)
	assert.Equal(t, "wise", name)
	assert.Equal(t, 1, ct.Remaining())

	name, ok = ct.Next()
	assert.True(t, ok)
	assert.Equal(t, "adyen", name)

	_, ok = ct.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, ct.Remaining())
}

type mockConfigReader struct {
	mock.Mock
}

func (m *mockConfigReader) FindConfig(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

type mockGsmReader struct {
	mock.Mock
}

func (m *mockGsmReader) FindGsmRule(ctx context.Context, key payout.GsmKey) (*payout.GsmRule, error) {
	args := m.Called(ctx, key)
	rule, _ := args.Get(0).(*payout.GsmRule)
	return rule, args.Error(1)
}

func TestGsmPolicy_ShouldCallGsm(t *testing.T) {
	ctx := context.Background()
	configs := &mockConfigReader{}
	configs.On("FindConfig", ctx, "should_call_gsm_single_connector_payout_m1").Return("true", nil)
	configs.On("FindConfig", ctx, "should_call_gsm_multiple_connector_payout_m1").Return("", store.ErrNotFound)
	configs.On("FindConfig", ctx, "should_call_gsm_single_connector_payout_m2").Return("yes please", nil)
	configs.On("FindConfig", ctx, "should_call_gsm_multiple_connector_payout_m2").Return("", errors.New("db down"))

	p := NewGsmPolicy(configs, &mockGsmReader{}, 1)

	assert.True(t, p.ShouldCallGsm(ctx, "m1", SingleConnector))
	assert.False(t, p.ShouldCallGsm(ctx, "m1", MultiConnector))
	assert.False(t, p.ShouldCallGsm(ctx, "m2", SingleConnector))
	assert.False(t, p.ShouldCallGsm(ctx, "m2", MultiConnector))
	configs.AssertExpectations(t)
}

func TestGsmPolicy_MaxRetries(t *testing.T) {
	ctx := context.Background()
	configs := &mockConfigReader{}
	configs.On("FindConfig", ctx, "max_auto_payout_retries_enabled_m1").Return("3", nil)
	configs.On("FindConfig", ctx, "max_auto_payout_retries_enabled_m2").Return("", store.ErrNotFound)
	configs.On("FindConfig", ctx, "max_auto_payout_retries_enabled_m3").Return("-1", nil)

	p := NewGsmPolicy(configs, &mockGsmReader{}, 1)

	assert.Equal(t, 3, p.MaxRetries(ctx, "m1"))
	assert.Equal(t, 1, p.MaxRetries(ctx, "m2"))
	assert.Equal(t, 1, p.MaxRetries(ctx, "m3"))
}

func TestGsmPolicy_Decision(t *testing.T) {
	ctx := context.Background()
	known := payout.GsmKey{Connector: "wise", Flow: "payout_flow", SubFlow: "create", Code: "timeout", Message: "gateway timeout"}
	unknown := payout.GsmKey{Connector: "wise", Flow: "payout_flow", SubFlow: "create", Code: "declined"}
	broken := payout.GsmKey{Connector: "adyen"}

	rules := &mockGsmReader{}
	rules.On("FindGsmRule", ctx, known).Return(&payout.GsmRule{GsmKey: known, Decision: payout.GsmRetry}, nil)
	rules.On("FindGsmRule", ctx, unknown).Return(nil, store.ErrNotFound)
	rules.On("FindGsmRule", ctx, broken).Return(nil, errors.New("db down"))

	p := NewGsmPolicy(&mockConfigReader{}, rules, 1)

	d, err := p.Decision(ctx, known)
	assert.NoError(t, err)
	assert.Equal(t, payout.GsmRetry, d)

	d, err = p.Decision(ctx, unknown)
	assert.NoError(t, err)
	assert.Equal(t, payout.GsmDoDefault, d)

	_, err = p.Decision(ctx, broken)
	assert.Error(t, err)
	rules.AssertExpectations(t)
}
