package payout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		event   Event
		want    Status
		wantErr bool
	}{
		{"method data without confirm", StatusRequiresPayoutMethodData, Event{Kind: EventMethodDataAttached}, StatusRequiresConfirmation, false},
		{"method data with confirm", StatusRequiresPayoutMethodData, Event{Kind: EventMethodDataAttached, Confirm: true}, StatusRequiresCreation, false},
		{"method data after creation", StatusPending, Event{Kind: EventMethodDataAttached}, StatusPending, true},
		{"confirm", StatusRequiresConfirmation, Event{Kind: EventConfirmed}, StatusRequiresCreation, false},
		{"confirm from fulfillment", StatusRequiresFulfillment, Event{Kind: EventConfirmed}, StatusRequiresFulfillment, true},
		{"eligible keeps status", StatusRequiresCreation, Event{Kind: EventEligibilityChecked, Eligible: BoolPtr(true)}, StatusRequiresCreation, false},
		{"not eligible", StatusRequiresCreation, Event{Kind: EventEligibilityChecked, Eligible: BoolPtr(false)}, StatusIneligible, false},
		{"eligibility reported status wins", StatusRequiresCreation, Event{Kind: EventEligibilityChecked, Eligible: BoolPtr(false), Status: StatusPtr(StatusFailed)}, StatusFailed, false},
		{"not eligible with non-error status", StatusRequiresCreation, Event{Kind: EventEligibilityChecked, Eligible: BoolPtr(false), Status: StatusPtr(StatusRequiresCreation)}, StatusIneligible, false},
		{"eligibility on terminal", StatusSuccess, Event{Kind: EventEligibilityChecked}, StatusSuccess, true},
		{"recipient needs vendor account", StatusRequiresCreation, Event{Kind: EventRecipientCreated, NeedsVendorAccount: true}, StatusRequiresVendorAccountCreation, false},
		{"recipient created", StatusRequiresCreation, Event{Kind: EventRecipientCreated}, StatusRequiresCreation, false},
		{"disburse account", StatusRequiresVendorAccountCreation, Event{Kind: EventDisburseAccountCreated, Status: StatusPtr(StatusRequiresCreation)}, StatusRequiresCreation, false},
		{"disburse account wrong status", StatusRequiresCreation, Event{Kind: EventDisburseAccountCreated}, StatusRequiresCreation, true},
		{"instant payout", StatusRequiresCreation, Event{Kind: EventInstantCreated}, StatusRequiresFulfillment, false},
		{"connector create", StatusRequiresCreation, Event{Kind: EventConnectorCreated, Status: StatusPtr(StatusPending)}, StatusPending, false},
		{"connector create keeps status", StatusRequiresCreation, Event{Kind: EventConnectorCreated}, StatusRequiresCreation, false},
		{"fulfill", StatusRequiresFulfillment, Event{Kind: EventFulfilled, Status: StatusPtr(StatusSuccess)}, StatusSuccess, false},
		{"fulfill from pending", StatusPending, Event{Kind: EventFulfilled}, StatusPending, true},
		{"local cancel", StatusRequiresConfirmation, Event{Kind: EventCancelledLocally}, StatusCancelled, false},
		{"local cancel after creation", StatusPending, Event{Kind: EventCancelledLocally}, StatusPending, true},
		{"connector cancel", StatusPending, Event{Kind: EventConnectorCancelled, Status: StatusPtr(StatusCancelled)}, StatusCancelled, false},
		{"sync", StatusInitiated, Event{Kind: EventSynced, Status: StatusPtr(StatusSuccess)}, StatusSuccess, false},
		{"sync on terminal", StatusFailed, Event{Kind: EventSynced}, StatusFailed, true},
		{"connector failure", StatusRequiresCreation, Event{Kind: EventConnectorFailed}, StatusFailed, false},
		{"retry", StatusFailed, Event{Kind: EventRetryStarted}, StatusRequiresCreation, false},
		{"retry from success", StatusSuccess, Event{Kind: EventRetryStarted}, StatusSuccess, true},
		{"unknown event", StatusRequiresCreation, Event{Kind: "bogus"}, StatusRequiresCreation, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.current, tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransition_IllegalIsTyped(t *testing.T) {
	_, err := Transition(StatusCancelled, Event{Kind: EventConfirmed})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestStatusClassification(t *testing.T) {
	for _, s := range allStatuses {
		if s.IsErrorState() {
			assert.True(t, s.IsTerminal(), "%s is an error state but not terminal", s)
		}
		if s.IsCreationEligible() {
			assert.False(t, s.ConfirmForbidden(), "%s", s)
			assert.True(t, s.IsLocallyCancellable(), "%s", s)
		}
	}
	assert.True(t, StatusSuccess.IsTerminal())
	assert.False(t, StatusSuccess.IsErrorState())
	assert.True(t, StatusRequiresFulfillment.IsInitiated())
	assert.True(t, StatusRequiresVendorAccountCreation.ShouldCallRetrieve())
	assert.False(t, StatusRequiresCreation.ShouldCallRetrieve())

	st, ok := ParseStatus("requires_fulfillment")
	assert.True(t, ok)
	assert.Equal(t, StatusRequiresFulfillment, st)
	_, ok = ParseStatus("nope")
	assert.False(t, ok)
}

func TestMethodDataType(t *testing.T) {
	typ, err := (&MethodData{Bank: &BankDetails{IBAN: "DE89"}}).Type()
	assert.NoError(t, err)
	assert.Equal(t, TypeBank, typ)

	_, err = (&MethodData{Bank: &BankDetails{}, Card: &CardDetails{}}).Type()
	assert.Error(t, err)

	var empty *MethodData
	_, err = empty.Type()
	assert.Error(t, err)
}

func TestAttemptID(t *testing.T) {
	assert.Equal(t, "payout_abc_2", AttemptID("payout_abc", 2))
}
