package store

import (
	"context"
	"errors"

	"github.com/zoff-tech/go-payouts/pkg/payout"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("duplicate record")
)

// PayoutFilter constrains FilterPayouts. Results are newest first.
type PayoutFilter struct {
	CustomerID string
	Statuses   []payout.Status
	Limit      int
}

// RecordStore holds the payout-owned records.
type RecordStore interface {
	FindPayout(ctx context.Context, merchantID, payoutID string) (*payout.Payout, error)
	InsertPayout(ctx context.Context, p *payout.Payout) (*payout.Payout, error)
	UpdatePayout(ctx context.Context, current *payout.Payout, upd payout.PayoutUpdate) (*payout.Payout, error)
	FilterPayouts(ctx context.Context, merchantID string, f PayoutFilter) ([]payout.Payout, error)

	FindAttempt(ctx context.Context, merchantID, attemptID string) (*payout.PayoutAttempt, error)
	InsertAttempt(ctx context.Context, a *payout.PayoutAttempt) (*payout.PayoutAttempt, error)
	UpdateAttempt(ctx context.Context, current *payout.PayoutAttempt, upd payout.AttemptUpdate) (*payout.PayoutAttempt, error)

	InsertPayoutLink(ctx context.Context, l *payout.PayoutLink) (*payout.PayoutLink, error)
	UpdatePayoutLink(ctx context.Context, current *payout.PayoutLink, status payout.LinkStatus) (*payout.PayoutLink, error)
	FindPayoutLink(ctx context.Context, linkID string) (*payout.PayoutLink, error)
}

// Directory holds the merchant-owned records the payout core reads, plus the
// few writes it performs on them.
type Directory interface {
	FindBusinessProfile(ctx context.Context, merchantID, profileID string) (*payout.BusinessProfile, error)
	FindCustomer(ctx context.Context, merchantID, customerID string) (*payout.Customer, error)
	UpdateCustomerConnector(ctx context.Context, merchantID, customerID, label, connectorCustomerID string) (*payout.Customer, error)
	FindAddress(ctx context.Context, addressID string) (*payout.Address, error)
	InsertAddress(ctx context.Context, a *payout.Address) (*payout.Address, error)
	FindConfig(ctx context.Context, key string) (string, error)
	FindGsmRule(ctx context.Context, key payout.GsmKey) (*payout.GsmRule, error)
}

// Backend is one physical store.
type Backend interface {
	RecordStore
	Directory
}

// PayoutStore is what the payout core consumes: record operations are routed by
// the merchant's storage scheme.
type PayoutStore interface {
	Directory

	FindPayout(ctx context.Context, merchantID, payoutID string, scheme payout.StorageScheme) (*payout.Payout, error)
	InsertPayout(ctx context.Context, p *payout.Payout, scheme payout.StorageScheme) (*payout.Payout, error)
	UpdatePayout(ctx context.Context, current *payout.Payout, upd payout.PayoutUpdate, scheme payout.StorageScheme) (*payout.Payout, error)
	FilterPayouts(ctx context.Context, merchantID string, f PayoutFilter, scheme payout.StorageScheme) ([]payout.Payout, error)

	FindAttempt(ctx context.Context, merchantID, attemptID string, scheme payout.StorageScheme) (*payout.PayoutAttempt, error)
	InsertAttempt(ctx context.Context, a *payout.PayoutAttempt, scheme payout.StorageScheme) (*payout.PayoutAttempt, error)
	UpdateAttempt(ctx context.Context, current *payout.PayoutAttempt, upd payout.AttemptUpdate, scheme payout.StorageScheme) (*payout.PayoutAttempt, error)

	InsertPayoutLink(ctx context.Context, l *payout.PayoutLink, scheme payout.StorageScheme) (*payout.PayoutLink, error)
	UpdatePayoutLink(ctx context.Context, current *payout.PayoutLink, status payout.LinkStatus, scheme payout.StorageScheme) (*payout.PayoutLink, error)
	FindPayoutLink(ctx context.Context, linkID string, scheme payout.StorageScheme) (*payout.PayoutLink, error)
}
