package store

import (
	"context"

	"github.com/zoff-tech/go-payouts/pkg/payout"
)

// Router implements PayoutStore by dispatching record operations to the backend
// registered for the storage scheme. Unregistered schemes and directory reads go
// to the primary backend.
type Router struct {
	primary  Backend
	backends map[payout.StorageScheme]Backend
}

type RouterOption func(*Router)

// WithBackend routes a storage scheme to b.
func WithBackend(scheme payout.StorageScheme, b Backend) RouterOption {
	return func(r *Router) {
		r.backends[scheme] = b
	}
}

func NewRouter(primary Backend, opts ...RouterOption) *Router {
	r := &Router{primary: primary, backends: make(map[payout.StorageScheme]Backend)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) backend(scheme payout.StorageScheme) Backend {
	if b, ok := r.backends[scheme]; ok {
		return b
	}
	return r.primary
}

func (r *Router) FindPayout(ctx context.Context, merchantID, payoutID string, scheme payout.StorageScheme) (*payout.Payout, error) {
	return r.backend(scheme).FindPayout(ctx, merchantID, payoutID)
}

func (r *Router) InsertPayout(ctx context.Context, p *payout.Payout, scheme payout.StorageScheme) (*payout.Payout, error) {
	return r.backend(scheme).InsertPayout(ctx, p)
}

func (r *Router) UpdatePayout(ctx context.Context, current *payout.Payout, upd payout.PayoutUpdate, scheme payout.StorageScheme) (*payout.Payout, error) {
	return r.backend(scheme).UpdatePayout(ctx, current, upd)
}

func (r *Router) FilterPayouts(ctx context.Context, merchantID string, f PayoutFilter, scheme payout.StorageScheme) ([]payout.Payout, error) {
	return r.backend(scheme).FilterPayouts(ctx, merchantID, f)
}

func (r *Router) FindAttempt(ctx context.Context, merchantID, attemptID string, scheme payout.StorageScheme) (*payout.PayoutAttempt, error) {
	return r.backend(scheme).FindAttempt(ctx, merchantID, attemptID)
}

func (r *Router) InsertAttempt(ctx context.Context, a *payout.PayoutAttempt, scheme payout.StorageScheme) (*payout.PayoutAttempt, error) {
	return r.backend(scheme).InsertAttempt(ctx, a)
}

func (r *Router) UpdateAttempt(ctx context.Context, current *payout.PayoutAttempt, upd payout.AttemptUpdate, scheme payout.StorageScheme) (*payout.PayoutAttempt, error) {
	return r.backend(scheme).UpdateAttempt(ctx, current, upd)
}

func (r *Router) InsertPayoutLink(ctx context.Context, l *payout.PayoutLink, scheme payout.StorageScheme) (*payout.PayoutLink, error) {
	return r.backend(scheme).InsertPayoutLink(ctx, l)
}

func (r *Router) UpdatePayoutLink(ctx context.Context, current *payout.PayoutLink, status payout.LinkStatus, scheme payout.StorageScheme) (*payout.PayoutLink, error) {
	return r.backend(scheme).UpdatePayoutLink(ctx, current, status)
}

func (r *Router) FindPayoutLink(ctx context.Context, linkID string, scheme payout.StorageScheme) (*payout.PayoutLink, error) {
	return r.backend(scheme).FindPayoutLink(ctx, linkID)
}

func (r *Router) FindBusinessProfile(ctx context.Context, merchantID, profileID string) (*payout.BusinessProfile, error) {
	return r.primary.FindBusinessProfile(ctx, merchantID, profileID)
}

func (r *Router) FindCustomer(ctx context.Context, merchantID, customerID string) (*payout.Customer, error) {
	return r.primary.FindCustomer(ctx, merchantID, customerID)
}

func (r *Router) UpdateCustomerConnector(ctx context.Context, merchantID, customerID, label, connectorCustomerID string) (*payout.Customer, error) {
	return r.primary.UpdateCustomerConnector(ctx, merchantID, customerID, label, connectorCustomerID)
}

func (r *Router) FindAddress(ctx context.Context, addressID string) (*payout.Address, error) {
	return r.primary.FindAddress(ctx, addressID)
}

func (r *Router) InsertAddress(ctx context.Context, a *payout.Address) (*payout.Address, error) {
	return r.primary.InsertAddress(ctx, a)
}

func (r *Router) FindConfig(ctx context.Context, key string) (string, error) {
	return r.primary.FindConfig(ctx, key)
}

func (r *Router) FindGsmRule(ctx context.Context, key payout.GsmKey) (*payout.GsmRule, error) {
	return r.primary.FindGsmRule(ctx, key)
}
