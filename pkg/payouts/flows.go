package payouts

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-payouts/pkg/connector"
	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/telemetry"
)

// pass binds one connector to one aggregate for the sub-flows.
type pass struct {
	svc      *Service
	merchant payout.MerchantAccount
	conn     connector.Connector
	data     *PayoutData
}

func (s *Service) newPass(m payout.MerchantAccount, conn connector.Connector, d *PayoutData) *pass {
	return &pass{svc: s, merchant: m, conn: conn, data: d}
}

func (p *pass) span(ctx context.Context, flow connector.Flow) (context.Context, trace.Span) {
	return otel.Tracer(telemetry.TracerName).Start(ctx, "Payout."+string(flow),
		trace.WithAttributes(
			attribute.String("payout_id", p.data.Payout.PayoutID),
			attribute.String("connector", p.conn.Name()),
		))
}

func connectorLabel(profileID, connectorName string) string {
	return fmt.Sprintf("%s_%s", profileID, connectorName)
}

func (p *pass) routerData(flow connector.Flow) *connector.RouterData {
	d := p.data
	req := &connector.RouterData{
		Flow:                flow,
		MerchantID:          p.merchant.MerchantID,
		PayoutID:            d.Payout.PayoutID,
		AttemptID:           d.Attempt.PayoutAttemptID,
		ConnectorPayoutID:   d.Attempt.ConnectorPayoutID,
		Amount:              d.Payout.Amount,
		SourceCurrency:      d.Payout.SourceCurrency,
		DestinationCurrency: d.Payout.DestinationCurrency,
		PayoutType:          d.Payout.PayoutType,
		EntityType:          d.Payout.EntityType,
		Priority:            d.Payout.Priority,
		MethodData:          d.MethodData,
		Address:             d.Billing,
		Customer:            d.Customer,
	}
	if d.Customer != nil {
		req.ConnectorCustomerID = d.Customer.ConnectorCustomer[connectorLabel(d.Payout.ProfileID, p.conn.Name())]
	}
	return req
}

func (p *pass) withAccessToken(ctx context.Context, req *connector.RouterData) error {
	token, err := p.svc.tokens.Token(ctx, p.conn, req)
	if err != nil {
		return err
	}
	req.AccessToken = token
	return nil
}

// failed reports the current attempt as a failed pass.
func (p *pass) failed() Outcome {
	a := p.data.Attempt
	return Outcome{Kind: Fail, Err: &PayoutFailedError{Status: a.Status, ErrorCode: a.ErrorCode, ErrorMessage: a.ErrorMessage}}
}

// persistResponse moves the aggregate to next using the connector's answer and
// fails the pass when next is an error state.
func (p *pass) persistResponse(ctx context.Context, resp *connector.ResponseData, next payout.Status) (Outcome, error) {
	upd := payout.AttemptStatusUpdate{
		ConnectorPayoutID: resp.ConnectorPayoutID,
		Status:            next,
		IsEligible:        resp.PayoutEligible,
	}
	if next.IsErrorState() {
		upd.ErrorCode = resp.ErrorCode
		upd.ErrorMessage = resp.ErrorMessage
	}
	if err := p.svc.persistStatus(ctx, p.merchant, p.data, upd); err != nil {
		return Outcome{}, err
	}
	if next.IsErrorState() {
		return p.failed(), nil
	}
	return continuePass, nil
}

// connectorFailed persists a failed connector call on the attempt and the payout.
func (p *pass) connectorFailed(ctx context.Context, flow connector.Flow, err error, eligible *bool) (Outcome, error) {
	d := p.data
	er := connector.AsErrorResponse(err)
	log.Printf("Connector %s %s call failed for payout %s: %v", p.conn.Name(), flow, d.Payout.PayoutID, er)

	if er.StatusCode == http.StatusUnauthorized && p.conn.RequiresAccessToken() {
		if err := p.svc.tokens.Invalidate(ctx, p.merchant.MerchantID, p.conn.Name()); err != nil {
			log.Printf("Failed to drop access token for %s: %v", p.conn.Name(), err)
		}
	}

	next, terr := payout.Transition(d.Attempt.Status, payout.Event{Kind: payout.EventConnectorFailed})
	if terr != nil {
		return Outcome{}, internal("Computing failed status", terr)
	}
	upd := payout.AttemptStatusUpdate{
		Status:       next,
		ErrorCode:    er.Code,
		ErrorMessage: er.Message,
		IsEligible:   eligible,
	}
	if err := p.svc.persistStatus(ctx, p.merchant, d, upd); err != nil {
		return Outcome{}, err
	}
	d.failedFlow = flow
	return p.failed(), nil
}

func transitionError(err error) error {
	return internal("Computing payout status", err)
}

func (p *pass) eligibility(ctx context.Context) (Outcome, error) {
	d := p.data
	if d.Attempt.IsEligible == nil && p.conn.SupportsEligibility(d.Payout.PayoutType) {
		ctx, span := p.span(ctx, connector.FlowEligibility)
		defer span.End()

		resp, err := p.conn.Eligibility(ctx, p.routerData(connector.FlowEligibility))
		if err != nil {
			return p.connectorFailed(ctx, connector.FlowEligibility, err, payout.BoolPtr(false))
		}
		next, err := payout.Transition(d.Attempt.Status, payout.Event{
			Kind:     payout.EventEligibilityChecked,
			Status:   resp.Status,
			Eligible: resp.PayoutEligible,
		})
		if err != nil {
			return Outcome{}, transitionError(err)
		}
		out, err := p.persistResponse(ctx, resp, next)
		if err != nil || out.Kind != Continue {
			return out, err
		}
	}

	eligible := p.svc.settings.DefaultEligibility
	if d.Attempt.IsEligible != nil {
		eligible = *d.Attempt.IsEligible
	}
	if !eligible {
		return Outcome{Kind: Fail, Err: &PayoutFailedError{
			Status:       d.Attempt.Status,
			ErrorMessage: "Payout method data is invalid",
		}}, nil
	}
	return continuePass, nil
}

func (p *pass) createRecipient(ctx context.Context) (Outcome, error) {
	d := p.data
	if !d.Attempt.Status.IsCreationEligible() || !p.conn.SupportsCreateRecipient(d.Payout.PayoutType) {
		return continuePass, nil
	}
	label := connectorLabel(d.Payout.ProfileID, p.conn.Name())
	if d.Customer != nil && d.Customer.ConnectorCustomer[label] != "" {
		return continuePass, nil
	}

	ctx, span := p.span(ctx, connector.FlowCreateRecipient)
	defer span.End()

	resp, err := p.conn.CreateRecipient(ctx, p.routerData(connector.FlowCreateRecipient))
	if err != nil {
		return p.connectorFailed(ctx, connector.FlowCreateRecipient, err, nil)
	}

	if d.Customer != nil && resp.ConnectorPayoutID != "" {
		customer, err := p.svc.store.UpdateCustomerConnector(ctx, p.merchant.MerchantID, d.Customer.CustomerID, label, resp.ConnectorPayoutID)
		if err != nil {
			return Outcome{}, internal("Error updating customers in db", err)
		}
		d.Customer = customer
	}

	if !resp.ShouldAddNextStepToProcessTracker {
		return continuePass, nil
	}

	next, err := payout.Transition(d.Attempt.Status, payout.Event{
		Kind:               payout.EventRecipientCreated,
		Status:             resp.Status,
		NeedsVendorAccount: true,
	})
	if err != nil {
		return Outcome{}, transitionError(err)
	}
	if err := p.svc.scheduleAttachAccount(ctx, p.merchant, d, p.svc.now().Add(p.svc.settings.OnboardingDelay)); err != nil {
		return Outcome{}, internal("Failed while adding attach_payout_account_workflow workflow to process tracker", err)
	}
	upd := payout.AttemptStatusUpdate{Status: next, IsEligible: resp.PayoutEligible}
	if err := p.svc.persistStatus(ctx, p.merchant, d, upd); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: Terminate, Reason: "vendor account creation scheduled"}, nil
}

func (p *pass) createDisburseAccount(ctx context.Context) (Outcome, error) {
	d := p.data
	if d.Attempt.Status != payout.StatusRequiresVendorAccountCreation || !p.conn.SupportsVendorDisburseAccountCreate() {
		return continuePass, nil
	}

	ctx, span := p.span(ctx, connector.FlowCreateRecipientAccount)
	defer span.End()

	resp, err := p.conn.CreateRecipientAccount(ctx, p.routerData(connector.FlowCreateRecipientAccount))
	if err != nil {
		return p.connectorFailed(ctx, connector.FlowCreateRecipientAccount, err, nil)
	}
	next, err := payout.Transition(d.Attempt.Status, payout.Event{Kind: payout.EventDisburseAccountCreated, Status: resp.Status})
	if err != nil {
		return Outcome{}, transitionError(err)
	}
	return p.persistResponse(ctx, resp, next)
}

func (p *pass) createPayout(ctx context.Context) (Outcome, error) {
	d := p.data
	if !d.Attempt.Status.IsCreationEligible() {
		return continuePass, nil
	}

	ctx, span := p.span(ctx, connector.FlowCreate)
	defer span.End()

	if p.conn.SupportsInstantPayout(d.Payout.PayoutType) {
		next, err := payout.Transition(d.Attempt.Status, payout.Event{Kind: payout.EventInstantCreated})
		if err != nil {
			return Outcome{}, transitionError(err)
		}
		if err := p.svc.persistStatus(ctx, p.merchant, d, payout.AttemptStatusUpdate{Status: next}); err != nil {
			return Outcome{}, err
		}
		return continuePass, nil
	}

	req := p.routerData(connector.FlowCreate)
	if err := p.withAccessToken(ctx, req); err != nil {
		return p.connectorFailed(ctx, connector.FlowCreate, err, nil)
	}
	if p.conn.RequiresQuote() {
		quoteReq := *req
		quoteReq.Flow = connector.FlowQuote
		quote, err := p.conn.Quote(ctx, &quoteReq)
		if err != nil {
			return p.connectorFailed(ctx, connector.FlowCreate, err, nil)
		}
		req.QuoteID = quote.ConnectorPayoutID
	}

	resp, err := p.conn.Create(ctx, req)
	if err != nil {
		return p.connectorFailed(ctx, connector.FlowCreate, err, nil)
	}
	next, err := payout.Transition(d.Attempt.Status, payout.Event{Kind: payout.EventConnectorCreated, Status: resp.Status})
	if err != nil {
		return Outcome{}, transitionError(err)
	}
	return p.persistResponse(ctx, resp, next)
}

func (p *pass) autoFulfill(ctx context.Context) (Outcome, error) {
	d := p.data
	if !d.Payout.AutoFulfill || d.Attempt.Status != payout.StatusRequiresFulfillment {
		return continuePass, nil
	}
	return p.fulfill(ctx)
}

func (p *pass) fulfill(ctx context.Context) (Outcome, error) {
	d := p.data
	ctx, span := p.span(ctx, connector.FlowFulfill)
	defer span.End()

	req := p.routerData(connector.FlowFulfill)
	if err := p.withAccessToken(ctx, req); err != nil {
		return p.connectorFailed(ctx, connector.FlowFulfill, err, nil)
	}
	resp, err := p.conn.Fulfill(ctx, req)
	if err != nil {
		return p.connectorFailed(ctx, connector.FlowFulfill, err, nil)
	}
	next, err := payout.Transition(d.Attempt.Status, payout.Event{Kind: payout.EventFulfilled, Status: resp.Status})
	if err != nil {
		return Outcome{}, transitionError(err)
	}

	if d.Payout.Recurring && d.Payout.PayoutMethodID == "" && !next.IsErrorState() {
		if err := p.saveMethodData(ctx); err != nil {
			return Outcome{}, err
		}
	}
	return p.persistResponse(ctx, resp, next)
}

// saveMethodData keeps the instrument of a recurring payout past the temporary
// token's lifetime.
func (p *pass) saveMethodData(ctx context.Context) error {
	d := p.data
	if d.MethodData == nil {
		return missingField("payout_method_data")
	}
	methodID, err := p.svc.locker.Save(ctx, p.merchant.MerchantID, d.MethodData)
	if err != nil {
		return internal("Error saving payout method data", err)
	}
	updated, err := p.svc.store.UpdatePayout(ctx, d.Payout, payout.PayoutUpdate{PayoutMethodID: &methodID}, p.merchant.StorageScheme)
	if err != nil {
		return internal("Error updating payout_method_id in payouts", err)
	}
	d.Payout = updated
	return nil
}

func (p *pass) cancel(ctx context.Context) (Outcome, error) {
	d := p.data
	ctx, span := p.span(ctx, connector.FlowCancel)
	defer span.End()

	resp, err := p.conn.Cancel(ctx, p.routerData(connector.FlowCancel))
	if err != nil {
		return p.connectorFailed(ctx, connector.FlowCancel, err, nil)
	}
	next, err := payout.Transition(d.Attempt.Status, payout.Event{Kind: payout.EventConnectorCancelled, Status: resp.Status})
	if err != nil {
		return Outcome{}, transitionError(err)
	}
	upd := payout.AttemptStatusUpdate{
		ConnectorPayoutID: resp.ConnectorPayoutID,
		Status:            next,
		IsEligible:        resp.PayoutEligible,
	}
	if err := p.svc.persistStatus(ctx, p.merchant, d, upd); err != nil {
		return Outcome{}, err
	}
	return continuePass, nil
}

// sync asks the connector for the latest status. A failed sync only annotates
// the in-memory attempt.
func (p *pass) sync(ctx context.Context) (Outcome, error) {
	d := p.data
	ctx, span := p.span(ctx, connector.FlowSync)
	defer span.End()

	req := p.routerData(connector.FlowSync)
	err := p.withAccessToken(ctx, req)
	var resp *connector.ResponseData
	if err == nil {
		resp, err = p.conn.Sync(ctx, req)
	}
	if err != nil {
		er := connector.AsErrorResponse(err)
		log.Printf("Error in payout retrieval for %s: %v", d.Payout.PayoutID, er)
		d.Attempt.ErrorCode = er.Code
		d.Attempt.ErrorMessage = er.Message
		return continuePass, nil
	}

	next, err := payout.Transition(d.Attempt.Status, payout.Event{Kind: payout.EventSynced, Status: resp.Status})
	if err != nil {
		return Outcome{}, transitionError(err)
	}
	out, err := p.persistResponse(ctx, resp, next)
	if err != nil {
		return Outcome{}, err
	}
	d.record(out)
	return out, nil
}
