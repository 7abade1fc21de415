package payouts

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-payouts/pkg/cache"
	"github.com/zoff-tech/go-payouts/pkg/config"
	"github.com/zoff-tech/go-payouts/pkg/connector"
	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/routing"
	"github.com/zoff-tech/go-payouts/pkg/scheduler"
	"github.com/zoff-tech/go-payouts/pkg/store"
	"github.com/zoff-tech/go-payouts/pkg/telemetry"
)

// PayoutData is the aggregate one orchestration pass works on. It is owned by
// that pass and never shared.
type PayoutData struct {
	Payout              *payout.Payout
	Attempt             *payout.PayoutAttempt
	Billing             *payout.Address
	Profile             *payout.BusinessProfile
	Customer            *payout.Customer
	MerchantConnectorID string
	MethodData          *payout.MethodData
	Link                *payout.PayoutLink

	// ShouldTerminate is set when a sub-flow deferred the rest of the pass.
	ShouldTerminate bool
	// Failure is set when the pass ended in an error state.
	Failure *PayoutFailedError

	failedFlow connector.Flow
}

// ShouldCallGsm reports whether the current attempt failed at the connector with a
// classifiable error.
func (d *PayoutData) ShouldCallGsm() bool {
	return d.Attempt.Status == payout.StatusFailed && d.Attempt.ErrorCode != ""
}

// Deps are the collaborators of the payout core.
type Deps struct {
	Store      store.PayoutStore
	Connectors *connector.Registry
	Tokens     *connector.AccessTokenProvider
	Locker     *cache.Locker
	Tasks      scheduler.TaskSink
	Gsm        *routing.GsmPolicy
	Settings   config.PayoutSettings
}

// Service runs the payout operations.
type Service struct {
	store      store.PayoutStore
	connectors *connector.Registry
	tokens     *connector.AccessTokenProvider
	locker     *cache.Locker
	tasks      scheduler.TaskSink
	gsm        *routing.GsmPolicy
	settings   config.PayoutSettings
	now        func() time.Time
}

func NewService(d Deps) *Service {
	gsm := d.Gsm
	if gsm == nil {
		gsm = routing.NewGsmPolicy(d.Store, d.Store, d.Settings.MaxAutoRetries)
	}
	return &Service{
		store:      d.Store,
		connectors: d.Connectors,
		tokens:     d.Tokens,
		locker:     d.Locker,
		tasks:      d.Tasks,
		gsm:        gsm,
		settings:   d.Settings,
		now:        time.Now,
	}
}

func (s *Service) startSpan(ctx context.Context, name string, m payout.MerchantAccount) (context.Context, trace.Span) {
	return otel.Tracer(telemetry.TracerName).Start(ctx, name,
		trace.WithAttributes(attribute.String("merchant_id", m.MerchantID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		telemetry.RecordError(span, err)
	}
	span.End()
}

// Create validates the request, stores the payout, its first attempt and the
// optional payout link, and runs the payout when it is confirmed.
func (s *Service) Create(ctx context.Context, m payout.MerchantAccount, req CreateRequest) (resp *PayoutResponse, err error) {
	ctx, span := s.startSpan(ctx, "PayoutsCreate", m)
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	d, err := s.createRecords(ctx, m, &req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payout_id", d.Payout.PayoutID))

	if d.Payout.IsConfirmed() {
		if err := s.runCore(ctx, m, d, coreInput{algorithm: req.Routing, eligible: req.Connectors}); err != nil {
			return nil, err
		}
	}
	return buildResponse(d), nil
}

// Confirm runs a payout that was created without confirm.
func (s *Service) Confirm(ctx context.Context, m payout.MerchantAccount, payoutID string, req UpdateRequest) (resp *PayoutResponse, err error) {
	ctx, span := s.startSpan(ctx, "PayoutsConfirm", m)
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	d, err := s.loadPayoutData(ctx, m, payoutID)
	if err != nil {
		return nil, err
	}

	status := d.Payout.Status
	if status.IsTerminal() || status.ConfirmForbidden() {
		return nil, invalidRequest("Payout %s cannot be confirmed for status %s", payoutID, status)
	}

	req.Confirm = payout.BoolPtr(true)
	if err := s.applyUpdate(ctx, m, d, &req); err != nil {
		return nil, err
	}

	if d.Link != nil {
		link, err := s.store.UpdatePayoutLink(ctx, d.Link, payout.LinkSubmitted, m.StorageScheme)
		if err != nil {
			return nil, storageError("payout_link", err)
		}
		d.Link = link
	}

	if err := s.runCore(ctx, m, d, coreInput{algorithm: req.Routing, eligible: req.Connectors}); err != nil {
		return nil, err
	}
	return buildResponse(d), nil
}

// Update changes a payout before it reaches a connector and runs it when the
// update confirms it.
func (s *Service) Update(ctx context.Context, m payout.MerchantAccount, payoutID string, req UpdateRequest) (resp *PayoutResponse, err error) {
	ctx, span := s.startSpan(ctx, "PayoutsUpdate", m)
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	d, err := s.loadPayoutData(ctx, m, payoutID)
	if err != nil {
		return nil, err
	}

	status := d.Payout.Status
	if status.IsTerminal() || status.IsInitiated() {
		return nil, invalidRequest("Payout %s cannot be updated for status %s", payoutID, status)
	}

	if err := s.applyUpdate(ctx, m, d, &req); err != nil {
		return nil, err
	}

	if d.Payout.IsConfirmed() {
		if err := s.runCore(ctx, m, d, coreInput{algorithm: req.Routing, eligible: req.Connectors}); err != nil {
			return nil, err
		}
	}
	return buildResponse(d), nil
}

// Retrieve returns the stored payout. With forceSync the connector is asked for
// the latest status first when the payout is still in flight.
func (s *Service) Retrieve(ctx context.Context, m payout.MerchantAccount, payoutID string, forceSync bool) (resp *PayoutResponse, err error) {
	ctx, span := s.startSpan(ctx, "PayoutsRetrieve", m)
	defer func() { endSpan(span, err) }()

	d, err := s.loadPayoutData(ctx, m, payoutID)
	if err != nil {
		return nil, err
	}

	if forceSync && d.Attempt.Status.ShouldCallRetrieve() {
		ct, err := routing.Decide(routing.Request{Connector: d.Attempt.Connector, Profile: d.Profile})
		if err != nil {
			return nil, routingError(err)
		}
		if ct.Kind != routing.PreDetermined {
			return nil, internal("Payout sync needs a single connector", nil)
		}
		name, _ := ct.Next()
		conn, err := s.connector(name)
		if err != nil {
			return nil, err
		}
		p := s.newPass(m, conn, d)
		if _, err := p.sync(ctx); err != nil {
			return nil, err
		}
	}
	return buildResponse(d), nil
}

// Cancel cancels a payout. Payouts that never reached a connector are cancelled
// locally; others are cancelled at the connector.
func (s *Service) Cancel(ctx context.Context, m payout.MerchantAccount, payoutID string) (resp *PayoutResponse, err error) {
	ctx, span := s.startSpan(ctx, "PayoutsCancel", m)
	defer func() { endSpan(span, err) }()

	d, err := s.loadPayoutData(ctx, m, payoutID)
	if err != nil {
		return nil, err
	}

	status := d.Attempt.Status
	switch {
	case status.IsTerminal():
		return nil, invalidRequest("Payout %s cannot be cancelled for status %s", payoutID, status)

	case status.IsLocallyCancellable():
		next, err := payout.Transition(status, payout.Event{Kind: payout.EventCancelledLocally})
		if err != nil {
			return nil, internal("Computing cancel status", err)
		}
		upd := payout.AttemptStatusUpdate{Status: next, ErrorMessage: "Cancelled by user"}
		if err := s.persistStatus(ctx, m, d, upd); err != nil {
			return nil, err
		}
		log.Printf("Payout %s cancelled before reaching a connector", payoutID)

	default:
		if d.Attempt.Connector == "" {
			return nil, missingField("connector")
		}
		conn, err := s.connector(d.Attempt.Connector)
		if err != nil {
			return nil, err
		}
		p := s.newPass(m, conn, d)
		out, err := p.cancel(ctx)
		if err != nil {
			return nil, err
		}
		d.record(out)
	}
	return buildResponse(d), nil
}

// Fulfill releases a payout waiting in requires_fulfillment.
func (s *Service) Fulfill(ctx context.Context, m payout.MerchantAccount, payoutID string) (resp *PayoutResponse, err error) {
	ctx, span := s.startSpan(ctx, "PayoutsFulfill", m)
	defer func() { endSpan(span, err) }()

	d, err := s.loadPayoutData(ctx, m, payoutID)
	if err != nil {
		return nil, err
	}

	if status := d.Attempt.Status; status != payout.StatusRequiresFulfillment {
		return nil, invalidRequest("Payout %s cannot be fulfilled for status %s", payoutID, status)
	}
	if d.Attempt.Connector == "" {
		return nil, missingField("connector")
	}
	conn, err := s.connector(d.Attempt.Connector)
	if err != nil {
		return nil, err
	}
	if err := s.ensureMethodData(ctx, m, d); err != nil {
		return nil, err
	}

	p := s.newPass(m, conn, d)
	out, err := p.fulfill(ctx)
	if err != nil {
		return nil, err
	}
	d.record(out)
	return buildResponse(d), nil
}

// List returns the merchant's payouts, newest first.
func (s *Service) List(ctx context.Context, m payout.MerchantAccount, c ListConstraints) (out []PayoutResponse, err error) {
	ctx, span := s.startSpan(ctx, "PayoutsList", m)
	defer func() { endSpan(span, err) }()

	f, err := c.filter()
	if err != nil {
		return nil, err
	}
	found, err := s.store.FilterPayouts(ctx, m.MerchantID, f, m.StorageScheme)
	if err != nil {
		return nil, internal("Error listing payouts", err)
	}

	out = make([]PayoutResponse, 0, len(found))
	for i := range found {
		p := found[i]
		attempt, err := s.store.FindAttempt(ctx, m.MerchantID, payout.AttemptID(p.PayoutID, p.AttemptCount), m.StorageScheme)
		if err != nil {
			return nil, storageError("payout_attempt", err)
		}
		out = append(out, *buildResponse(&PayoutData{Payout: &p, Attempt: attempt}))
	}
	return out, nil
}

// ResumeVendorAccount continues a payout parked in
// requires_vendor_account_creation. It is run by the attach-account workflow.
func (s *Service) ResumeVendorAccount(ctx context.Context, m payout.MerchantAccount, payoutID string) (err error) {
	ctx, span := s.startSpan(ctx, "PayoutsResumeVendorAccount", m)
	defer func() { endSpan(span, err) }()

	d, err := s.loadPayoutData(ctx, m, payoutID)
	if err != nil {
		return err
	}
	if d.Attempt.Status != payout.StatusRequiresVendorAccountCreation {
		log.Printf("Skipping vendor account continuation for payout %s in status %s", payoutID, d.Attempt.Status)
		return nil
	}
	return s.runCore(ctx, m, d, coreInput{})
}

func (s *Service) connector(name string) (connector.Connector, error) {
	conn, err := s.connectors.Get(name)
	if errors.Is(err, connector.ErrConnectorNotFound) {
		return nil, invalidRequest("Connector %s is not configured for payouts", name)
	}
	if err != nil {
		return nil, internal("Looking up connector", err)
	}
	return conn, nil
}
