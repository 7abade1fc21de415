package payouts

import (
	"context"

	"github.com/zoff-tech/go-payouts/pkg/payout"
)

func (s *Service) updateAttempt(ctx context.Context, m payout.MerchantAccount, d *PayoutData, upd payout.AttemptUpdate) error {
	attempt, err := s.store.UpdateAttempt(ctx, d.Attempt, upd, m.StorageScheme)
	if err != nil {
		return internal("Error updating payout_attempt in db", err)
	}
	d.Attempt = attempt
	return nil
}

// persistStatus writes a status transition to the attempt and then to the
// payout. Each write is durable on its own; a reader between the two can see
// them disagree.
func (s *Service) persistStatus(ctx context.Context, m payout.MerchantAccount, d *PayoutData, upd payout.AttemptStatusUpdate) error {
	if err := s.updateAttempt(ctx, m, d, payout.AttemptUpdate{Status: &upd}); err != nil {
		return err
	}
	status := upd.Status
	p, err := s.store.UpdatePayout(ctx, d.Payout, payout.PayoutUpdate{Status: &status}, m.StorageScheme)
	if err != nil {
		return internal("Error updating payouts in db", err)
	}
	d.Payout = p
	return nil
}

// startRetryAttempt replaces the failed attempt with a fresh one that keeps the
// payee token and routing, and bumps the payout's attempt count.
func (s *Service) startRetryAttempt(ctx context.Context, m payout.MerchantAccount, d *PayoutData) error {
	prev := d.Attempt
	status, err := payout.Transition(prev.Status, payout.Event{Kind: payout.EventRetryStarted})
	if err != nil {
		return internal("Computing retry status", err)
	}

	count := d.Payout.AttemptCount + 1
	now := s.now().UTC()
	attempt, err := s.store.InsertAttempt(ctx, &payout.PayoutAttempt{
		PayoutAttemptID: payout.AttemptID(d.Payout.PayoutID, count),
		PayoutID:        prev.PayoutID,
		CustomerID:      prev.CustomerID,
		MerchantID:      prev.MerchantID,
		AddressID:       prev.AddressID,
		PayoutToken:     prev.PayoutToken,
		Status:          status,
		BusinessCountry: prev.BusinessCountry,
		BusinessLabel:   prev.BusinessLabel,
		ProfileID:       prev.ProfileID,
		RoutingInfo:     prev.RoutingInfo,
		CreatedAt:       now,
		LastModifiedAt:  now,
	}, m.StorageScheme)
	if err != nil {
		return internal("Error inserting payout_attempt in db", err)
	}
	d.Attempt = attempt

	p, err := s.store.UpdatePayout(ctx, d.Payout, payout.PayoutUpdate{AttemptCount: &count}, m.StorageScheme)
	if err != nil {
		return internal("Error updating attempt_count in payouts", err)
	}
	p, err = s.store.UpdatePayout(ctx, p, payout.PayoutUpdate{Status: &status}, m.StorageScheme)
	if err != nil {
		return internal("Error updating payouts in db", err)
	}
	d.Payout = p
	d.Failure = nil
	d.ShouldTerminate = false
	d.failedFlow = ""
	return nil
}
