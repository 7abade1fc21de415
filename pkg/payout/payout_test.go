package payout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttemptUpdate_Apply(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	base := PayoutAttempt{
		PayoutAttemptID:   "po_1_1",
		Connector:         "wise",
		ConnectorPayoutID: "tr_1",
		Status:            StatusFailed,
		IsEligible:        BoolPtr(true),
		ErrorCode:         "timeout",
		ErrorMessage:      "gateway timeout",
	}

	tests := []struct {
		name   string
		update AttemptUpdate
		check  func(t *testing.T, got PayoutAttempt)
	}{
		{
			name:   "status keeps connector id and eligibility when unset",
			update: AttemptUpdate{Status: &AttemptStatusUpdate{Status: StatusPending}},
			check: func(t *testing.T, got PayoutAttempt) {
				assert.Equal(t, StatusPending, got.Status)
				assert.Equal(t, "tr_1", got.ConnectorPayoutID)
				assert.Equal(t, BoolPtr(true), got.IsEligible)
				assert.Empty(t, got.ErrorCode)
				assert.Empty(t, got.ErrorMessage)
			},
		},
		{
			name:   "status replaces connector id and eligibility",
			update: AttemptUpdate{Status: &AttemptStatusUpdate{Status: StatusIneligible, ConnectorPayoutID: "tr_2", IsEligible: BoolPtr(false)}},
			check: func(t *testing.T, got PayoutAttempt) {
				assert.Equal(t, "tr_2", got.ConnectorPayoutID)
				assert.Equal(t, BoolPtr(false), got.IsEligible)
			},
		},
		{
			name:   "routing clears connector",
			update: AttemptUpdate{Routing: &AttemptRoutingUpdate{}},
			check: func(t *testing.T, got PayoutAttempt) {
				assert.Empty(t, got.Connector)
				assert.Equal(t, StatusFailed, got.Status)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.update.Apply(base, now)
			tt.check(t, got)
			assert.Equal(t, now, got.LastModifiedAt)
			assert.Equal(t, "po_1_1", got.PayoutAttemptID)
		})
	}
}
