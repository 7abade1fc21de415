package payout

// Status represents the lifecycle status shared by a payout and its current attempt.
type Status string

const (
	StatusRequiresPayoutMethodData      Status = "requires_payout_method_data"
	StatusRequiresConfirmation          Status = "requires_confirmation"
	StatusRequiresCreation              Status = "requires_creation"
	StatusRequiresVendorAccountCreation Status = "requires_vendor_account_creation"
	StatusRequiresFulfillment           Status = "requires_fulfillment"
	StatusPending                       Status = "pending"
	StatusInitiated                     Status = "initiated"
	StatusSuccess                       Status = "success"
	StatusFailed                        Status = "failed"
	StatusCancelled                     Status = "cancelled"
	StatusIneligible                    Status = "ineligible"
	StatusExpired                       Status = "expired"
	StatusReversed                      Status = "reversed"
)

var allStatuses = []Status{
	StatusRequiresPayoutMethodData,
	StatusRequiresConfirmation,
	StatusRequiresCreation,
	StatusRequiresVendorAccountCreation,
	StatusRequiresFulfillment,
	StatusPending,
	StatusInitiated,
	StatusSuccess,
	StatusFailed,
	StatusCancelled,
	StatusIneligible,
	StatusExpired,
	StatusReversed,
}

// ParseStatus converts a stored value back into a Status.
func ParseStatus(s string) (Status, bool) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s Status) String() string {
	return string(s)
}

func (s Status) in(set ...Status) bool {
	for _, st := range set {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s.in(StatusSuccess, StatusFailed, StatusCancelled, StatusIneligible, StatusExpired, StatusReversed)
}

// IsErrorState reports whether the status is a business failure.
func (s Status) IsErrorState() bool {
	return s.in(StatusFailed, StatusCancelled, StatusIneligible, StatusExpired, StatusReversed)
}

// IsInitiated reports whether the payout was already handed to a connector.
func (s Status) IsInitiated() bool {
	return s.in(StatusPending, StatusInitiated, StatusRequiresFulfillment)
}

// IsCreationEligible reports whether the recipient and create sub-flows may run.
func (s Status) IsCreationEligible() bool {
	return s.in(StatusRequiresCreation, StatusRequiresConfirmation, StatusRequiresPayoutMethodData)
}

// IsLocallyCancellable reports whether a cancel can be applied without calling the connector.
func (s Status) IsLocallyCancellable() bool {
	return s.IsCreationEligible()
}

// ShouldCallRetrieve reports whether a forced sync against the connector is meaningful.
func (s Status) ShouldCallRetrieve() bool {
	return s.in(StatusPending, StatusInitiated, StatusRequiresVendorAccountCreation, StatusRequiresFulfillment)
}

// ConfirmForbidden reports whether a confirm request must be rejected.
func (s Status) ConfirmForbidden() bool {
	return s.in(
		StatusCancelled,
		StatusSuccess,
		StatusFailed,
		StatusPending,
		StatusIneligible,
		StatusRequiresFulfillment,
		StatusRequiresVendorAccountCreation,
	)
}
