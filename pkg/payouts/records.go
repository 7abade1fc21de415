package payouts

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/zoff-tech/go-payouts/pkg/cache"
	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/store"
)

func generateID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func clientSecret(payoutID string) string {
	return fmt.Sprintf("%s_secret_%s", payoutID, uuid.NewString())
}

// createRecords writes the payout, its first attempt and the optional link, and
// stashes raw method data in the locker.
func (s *Service) createRecords(ctx context.Context, m payout.MerchantAccount, req *CreateRequest) (*PayoutData, error) {
	payoutID := req.PayoutID
	if payoutID == "" {
		payoutID = generateID("payout")
	}

	_, err := s.store.FindPayout(ctx, m.MerchantID, payoutID, m.StorageScheme)
	switch {
	case err == nil:
		return nil, &APIError{Kind: KindDuplicate, Message: fmt.Sprintf("payout_id %s already exists", payoutID)}
	case !errors.Is(err, store.ErrNotFound):
		return nil, internal("Error checking payout_id", err)
	}

	profileID := req.ProfileID
	if profileID == "" {
		profileID = m.DefaultProfileID
	}
	if profileID == "" {
		return nil, missingField("profile_id")
	}
	profile, err := s.store.FindBusinessProfile(ctx, m.MerchantID, profileID)
	if err != nil {
		return nil, storageError("business_profile", err)
	}

	customer, err := s.store.FindCustomer(ctx, m.MerchantID, req.CustomerID)
	if err != nil {
		return nil, storageError("customer", err)
	}

	d := &PayoutData{Profile: profile, Customer: customer}

	if req.Billing != nil {
		addr := *req.Billing
		addr.AddressID = generateID("add")
		billing, err := s.store.InsertAddress(ctx, &addr)
		if err != nil {
			return nil, storageError("address", err)
		}
		d.Billing = billing
	}

	token := req.PayoutToken
	switch {
	case req.MethodData != nil:
		token, err = s.locker.StoreTemp(ctx, req.MethodData)
		if err != nil {
			return nil, internal("Error storing payout method data", err)
		}
		d.MethodData = req.MethodData
	case token != "":
		data, err := s.locker.LoadTemp(ctx, token)
		if err != nil {
			return nil, methodDataError(err)
		}
		d.MethodData = data
	}

	status := payout.StatusRequiresPayoutMethodData
	if req.hasMethodData() {
		status, err = payout.Transition(status, payout.Event{Kind: payout.EventMethodDataAttached, Confirm: req.Confirm})
		if err != nil {
			return nil, internal("Computing initial status", err)
		}
	}

	now := s.now().UTC()
	p := &payout.Payout{
		PayoutID:            payoutID,
		MerchantID:          m.MerchantID,
		CustomerID:          req.CustomerID,
		PayoutType:          req.PayoutType,
		Amount:              req.Amount,
		SourceCurrency:      req.Currency,
		DestinationCurrency: req.destinationCurrency(),
		Description:         req.Description,
		Recurring:           req.Recurring,
		AutoFulfill:         req.AutoFulfill,
		ReturnURL:           req.ReturnURL,
		EntityType:          req.entityType(),
		Metadata:            req.Metadata,
		Status:              status,
		AttemptCount:        1,
		ProfileID:           profileID,
		Confirm:             payout.BoolPtr(req.Confirm),
		ClientSecret:        clientSecret(payoutID),
		Priority:            req.Priority,
		CreatedAt:           now,
		LastModifiedAt:      now,
	}
	if d.Billing != nil {
		p.AddressID = d.Billing.AddressID
	}

	if req.PayoutLink {
		link, err := s.createPayoutLink(ctx, m, d, p, req.PayoutLinkConfig)
		if err != nil {
			return nil, err
		}
		p.PayoutLinkID = link.LinkID
		d.Link = link
	}

	d.Payout, err = s.store.InsertPayout(ctx, p, m.StorageScheme)
	if err != nil {
		return nil, storageError("payout", err)
	}

	attempt := &payout.PayoutAttempt{
		PayoutAttemptID: payout.AttemptID(payoutID, 1),
		PayoutID:        payoutID,
		CustomerID:      req.CustomerID,
		MerchantID:      m.MerchantID,
		AddressID:       p.AddressID,
		PayoutToken:     token,
		Status:          status,
		BusinessCountry: req.BusinessCountry,
		BusinessLabel:   req.BusinessLabel,
		ProfileID:       profileID,
		RoutingInfo:     req.Routing,
		CreatedAt:       now,
		LastModifiedAt:  now,
	}
	d.Attempt, err = s.store.InsertAttempt(ctx, attempt, m.StorageScheme)
	if err != nil {
		return nil, storageError("payout_attempt", err)
	}

	log.Printf("Created payout %s in status %s", payoutID, status)
	return d, nil
}

// loadPayoutData reads the aggregate for an existing payout.
func (s *Service) loadPayoutData(ctx context.Context, m payout.MerchantAccount, payoutID string) (*PayoutData, error) {
	p, err := s.store.FindPayout(ctx, m.MerchantID, payoutID, m.StorageScheme)
	if err != nil {
		return nil, storageError("payout", err)
	}
	attempt, err := s.store.FindAttempt(ctx, m.MerchantID, payout.AttemptID(p.PayoutID, p.AttemptCount), m.StorageScheme)
	if err != nil {
		return nil, storageError("payout_attempt", err)
	}
	profile, err := s.store.FindBusinessProfile(ctx, m.MerchantID, p.ProfileID)
	if err != nil {
		return nil, storageError("business_profile", err)
	}

	d := &PayoutData{Payout: p, Attempt: attempt, Profile: profile}

	if p.CustomerID != "" {
		d.Customer, err = s.store.FindCustomer(ctx, m.MerchantID, p.CustomerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, storageError("customer", err)
		}
	}
	if p.AddressID != "" {
		d.Billing, err = s.store.FindAddress(ctx, p.AddressID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, storageError("address", err)
		}
	}
	if p.PayoutLinkID != "" {
		d.Link, err = s.store.FindPayoutLink(ctx, p.PayoutLinkID, m.StorageScheme)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, storageError("payout_link", err)
		}
	}
	return d, nil
}

// applyUpdate writes the request onto the attempt and the payout, attempt first.
func (s *Service) applyUpdate(ctx context.Context, m payout.MerchantAccount, d *PayoutData, req *UpdateRequest) error {
	attempt := d.Attempt

	if req.MethodData != nil && req.PayoutType == nil && d.Payout.PayoutType != "" {
		if err := checkMethodType(req.MethodData, d.Payout.PayoutType); err != nil {
			return err
		}
	}

	switch {
	case req.MethodData != nil:
		token, err := s.locker.StoreTemp(ctx, req.MethodData)
		if err != nil {
			return internal("Error storing payout method data", err)
		}
		if err := s.updateAttempt(ctx, m, d, payout.AttemptUpdate{Token: &token}); err != nil {
			return err
		}
		d.MethodData = req.MethodData
	case req.PayoutToken != "":
		data, err := s.locker.LoadTemp(ctx, req.PayoutToken)
		if err != nil {
			return methodDataError(err)
		}
		token := req.PayoutToken
		if err := s.updateAttempt(ctx, m, d, payout.AttemptUpdate{Token: &token}); err != nil {
			return err
		}
		d.MethodData = data
	}

	if req.BusinessCountry != nil || req.BusinessLabel != nil {
		upd := payout.AttemptBusinessUpdate{BusinessCountry: attempt.BusinessCountry, BusinessLabel: attempt.BusinessLabel}
		if req.BusinessCountry != nil {
			upd.BusinessCountry = *req.BusinessCountry
		}
		if req.BusinessLabel != nil {
			upd.BusinessLabel = *req.BusinessLabel
		}
		if err := s.updateAttempt(ctx, m, d, payout.AttemptUpdate{Business: &upd}); err != nil {
			return err
		}
	}

	// A request naming connectors re-routes the payout.
	if len(req.Connectors) > 0 && d.Attempt.Connector != "" {
		if err := s.updateAttempt(ctx, m, d, payout.AttemptUpdate{Routing: &payout.AttemptRoutingUpdate{}}); err != nil {
			return err
		}
	}
	if len(req.Routing) > 0 {
		d.Attempt.RoutingInfo = req.Routing
	}

	fields := fieldsFrom(d.Payout, req)
	status := d.Attempt.Status
	if status.IsCreationEligible() {
		next := payout.StatusRequiresPayoutMethodData
		if d.Attempt.PayoutToken != "" || d.Payout.PayoutMethodID != "" {
			var err error
			next, err = payout.Transition(status, payout.Event{Kind: payout.EventMethodDataAttached, Confirm: fields.Confirm != nil && *fields.Confirm})
			if err != nil {
				return internal("Computing updated status", err)
			}
		}
		status = next
	}
	fields.Status = status

	if status != d.Attempt.Status {
		upd := payout.AttemptStatusUpdate{Status: status}
		if err := s.updateAttempt(ctx, m, d, payout.AttemptUpdate{Status: &upd}); err != nil {
			return err
		}
	}

	updated, err := s.store.UpdatePayout(ctx, d.Payout, payout.PayoutUpdate{Fields: fields}, m.StorageScheme)
	if err != nil {
		return internal("Error updating payouts in db", err)
	}
	d.Payout = updated
	return nil
}

func fieldsFrom(p *payout.Payout, req *UpdateRequest) *payout.PayoutFieldsUpdate {
	f := &payout.PayoutFieldsUpdate{
		Amount:              p.Amount,
		SourceCurrency:      p.SourceCurrency,
		DestinationCurrency: p.DestinationCurrency,
		Description:         p.Description,
		Recurring:           p.Recurring,
		AutoFulfill:         p.AutoFulfill,
		ReturnURL:           p.ReturnURL,
		EntityType:          p.EntityType,
		Metadata:            p.Metadata,
		PayoutType:          p.PayoutType,
		Confirm:             p.Confirm,
		Priority:            p.Priority,
		Status:              p.Status,
	}
	if req.Amount != nil {
		f.Amount = *req.Amount
	}
	if req.Currency != nil {
		f.SourceCurrency = *req.Currency
	}
	if req.DestinationCurrency != nil {
		f.DestinationCurrency = *req.DestinationCurrency
	}
	if req.Description != nil {
		f.Description = *req.Description
	}
	if req.Recurring != nil {
		f.Recurring = *req.Recurring
	}
	if req.AutoFulfill != nil {
		f.AutoFulfill = *req.AutoFulfill
	}
	if req.ReturnURL != nil {
		f.ReturnURL = *req.ReturnURL
	}
	if req.EntityType != nil {
		f.EntityType = *req.EntityType
	}
	if len(req.Metadata) > 0 {
		f.Metadata = req.Metadata
	}
	if req.PayoutType != nil {
		f.PayoutType = *req.PayoutType
	}
	if req.Confirm != nil {
		f.Confirm = payout.BoolPtr(*req.Confirm)
	}
	if req.Priority != nil {
		f.Priority = *req.Priority
	}
	return f
}

// ensureMethodData loads the payee instrument for the pass when it is not in
// memory yet.
func (s *Service) ensureMethodData(ctx context.Context, m payout.MerchantAccount, d *PayoutData) error {
	if d.MethodData != nil {
		return nil
	}
	var (
		data *payout.MethodData
		err  error
	)
	switch {
	case d.Attempt.PayoutToken != "":
		data, err = s.locker.LoadTemp(ctx, d.Attempt.PayoutToken)
	case d.Payout.PayoutMethodID != "":
		data, err = s.locker.Load(ctx, m.MerchantID, d.Payout.PayoutMethodID)
	default:
		return missingField("payout_method_data")
	}
	if err != nil {
		return methodDataError(err)
	}
	d.MethodData = data
	return nil
}

func methodDataError(err error) error {
	if errors.Is(err, cache.ErrMethodDataNotFound) {
		return invalidRequest("payout_token is invalid or has expired")
	}
	return internal("Error reading payout method data", err)
}
