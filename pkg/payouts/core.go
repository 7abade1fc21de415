package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/zoff-tech/go-payouts/pkg/connector"
	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/routing"
)

// OutcomeKind says whether the pipeline goes on after a sub-flow.
type OutcomeKind int

const (
	Continue OutcomeKind = iota
	// Terminate defers the rest of the pass to an asynchronous continuation.
	Terminate
	// Fail ends the pass in an error state.
	Fail
)

func (k OutcomeKind) String() string {
	switch k {
	case Terminate:
		return "terminate"
	case Fail:
		return "fail"
	default:
		return "continue"
	}
}

// Outcome is the result of one sub-flow.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    *PayoutFailedError
}

var continuePass = Outcome{Kind: Continue}

// subFlow is one step of the pass. A returned error is fatal and aborts the
// operation; connector failures are reported through the Outcome.
type subFlow func(ctx context.Context) (Outcome, error)

// runPipeline runs the sub-flows in order and stops at the first one that does
// not continue.
func runPipeline(ctx context.Context, flows ...subFlow) (Outcome, error) {
	for _, f := range flows {
		out, err := f(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if out.Kind != Continue {
			return out, nil
		}
	}
	return continuePass, nil
}

// record keeps the outcome of the last sub-flow on the aggregate.
func (d *PayoutData) record(out Outcome) {
	switch out.Kind {
	case Terminate:
		d.ShouldTerminate = true
	case Fail:
		d.Failure = out.Err
	}
}

// coreInput is the routing input of a pass coming from the request.
type coreInput struct {
	algorithm json.RawMessage
	eligible  []string
}

// runCore routes the payout, runs the sub-flow pipeline on the first connector
// and applies the GSM retry policy to a connector failure.
func (s *Service) runCore(ctx context.Context, m payout.MerchantAccount, d *PayoutData, in coreInput) error {
	eligible := in.eligible
	if len(eligible) == 0 {
		eligible = s.settings.EligibleConnectors
	}
	ct, err := routing.Decide(routing.Request{
		Connector:          d.Attempt.Connector,
		Algorithm:          in.algorithm,
		Profile:            d.Profile,
		EligibleConnectors: eligible,
	})
	if err != nil {
		return routingError(err)
	}
	if len(in.algorithm) > 0 {
		d.Attempt.RoutingInfo = in.algorithm
	}

	name, _ := ct.Next()
	conn, err := s.connector(name)
	if err != nil {
		return err
	}
	if err := s.callConnector(ctx, m, conn, d); err != nil {
		return err
	}
	return s.retryOnFailure(ctx, m, d, ct)
}

// callConnector records the routed connector on the attempt and runs the
// sub-flow pipeline against it.
func (s *Service) callConnector(ctx context.Context, m payout.MerchantAccount, conn connector.Connector, d *PayoutData) error {
	if d.Attempt.Connector != conn.Name() {
		upd := payout.AttemptRoutingUpdate{Connector: conn.Name(), RoutingInfo: d.Attempt.RoutingInfo}
		if err := s.updateAttempt(ctx, m, d, payout.AttemptUpdate{Routing: &upd}); err != nil {
			return err
		}
	}
	if err := s.ensureMethodData(ctx, m, d); err != nil {
		return err
	}

	p := s.newPass(m, conn, d)
	out, err := runPipeline(ctx,
		p.eligibility,
		p.createRecipient,
		p.createDisburseAccount,
		p.createPayout,
		p.autoFulfill,
	)
	if err != nil {
		return err
	}
	d.record(out)
	if out.Kind != Continue {
		log.Printf("Payout %s pass on %s stopped: %s %s", d.Payout.PayoutID, conn.Name(), out.Kind, out.Reason)
	}
	return nil
}

func routingError(err error) error {
	switch {
	case errors.Is(err, routing.ErrSessionMultiple),
		errors.Is(err, routing.ErrInvalidAlgorithm),
		errors.Is(err, routing.ErrNoConnector):
		return &APIError{Kind: KindInvalidRequest, Message: err.Error(), Err: err}
	default:
		return internal("Routing payout", err)
	}
}
