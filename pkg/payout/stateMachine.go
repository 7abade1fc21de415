package payout

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when an event is not accepted in the current status.
var ErrIllegalTransition = errors.New("illegal payout status transition")

// EventKind identifies what happened to a payout attempt.
type EventKind string

const (
	EventMethodDataAttached     EventKind = "method_data_attached"
	EventConfirmed              EventKind = "confirmed"
	EventEligibilityChecked     EventKind = "eligibility_checked"
	EventRecipientCreated       EventKind = "recipient_created"
	EventDisburseAccountCreated EventKind = "disburse_account_created"
	EventInstantCreated         EventKind = "instant_created"
	EventConnectorCreated       EventKind = "connector_created"
	EventFulfilled              EventKind = "fulfilled"
	EventCancelledLocally       EventKind = "cancelled_locally"
	EventConnectorCancelled     EventKind = "connector_cancelled"
	EventSynced                 EventKind = "synced"
	EventConnectorFailed        EventKind = "connector_failed"
	EventRetryStarted           EventKind = "retry_started"
)

// Event carries the facts a transition depends on. Status is the connector-reported
// status, if any; an absent status keeps the current one.
type Event struct {
	Kind               EventKind
	Status             *Status
	Eligible           *bool
	NeedsVendorAccount bool
	Confirm            bool
}

// Transition computes the next status for an event without performing any I/O.
func Transition(current Status, ev Event) (Status, error) {
	reported := func() Status {
		if ev.Status != nil {
			return *ev.Status
		}
		return current
	}

	switch ev.Kind {
	case EventMethodDataAttached:
		if !current.IsCreationEligible() {
			return current, illegal(current, ev)
		}
		if ev.Confirm {
			return StatusRequiresCreation, nil
		}
		return StatusRequiresConfirmation, nil

	case EventConfirmed:
		if current != StatusRequiresConfirmation && current != StatusRequiresCreation {
			return current, illegal(current, ev)
		}
		return StatusRequiresCreation, nil

	case EventEligibilityChecked:
		if current.IsTerminal() {
			return current, illegal(current, ev)
		}
		if ev.Eligible != nil && !*ev.Eligible && (ev.Status == nil || !ev.Status.IsErrorState()) {
			return StatusIneligible, nil
		}
		return reported(), nil

	case EventRecipientCreated:
		if !current.IsCreationEligible() {
			return current, illegal(current, ev)
		}
		if ev.Status != nil {
			return *ev.Status, nil
		}
		if ev.NeedsVendorAccount {
			return StatusRequiresVendorAccountCreation, nil
		}
		return current, nil

	case EventDisburseAccountCreated:
		if current != StatusRequiresVendorAccountCreation {
			return current, illegal(current, ev)
		}
		return reported(), nil

	case EventInstantCreated:
		if !current.IsCreationEligible() {
			return current, illegal(current, ev)
		}
		return StatusRequiresFulfillment, nil

	case EventConnectorCreated:
		if !current.IsCreationEligible() {
			return current, illegal(current, ev)
		}
		return reported(), nil

	case EventFulfilled:
		if current != StatusRequiresFulfillment {
			return current, illegal(current, ev)
		}
		return reported(), nil

	case EventCancelledLocally:
		if !current.IsLocallyCancellable() {
			return current, illegal(current, ev)
		}
		return StatusCancelled, nil

	case EventConnectorCancelled, EventSynced:
		if current.IsTerminal() {
			return current, illegal(current, ev)
		}
		return reported(), nil

	case EventConnectorFailed:
		if current.IsTerminal() {
			return current, illegal(current, ev)
		}
		return StatusFailed, nil

	case EventRetryStarted:
		if current != StatusFailed {
			return current, illegal(current, ev)
		}
		return StatusRequiresCreation, nil
	}

	return current, fmt.Errorf("unknown payout event %q", ev.Kind)
}

func illegal(current Status, ev Event) error {
	return fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev.Kind, current)
}

// StatusPtr is a helper for building events.
func StatusPtr(s Status) *Status {
	return &s
}

// BoolPtr is a helper for optional flags.
func BoolPtr(b bool) *bool {
	return &b
}
