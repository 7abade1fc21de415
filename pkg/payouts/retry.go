package payouts

import (
	"context"
	"log"

	"github.com/zoff-tech/go-payouts/pkg/connector"
	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/routing"
)

// gsmFlow is the flow name payout failures are classified under.
const gsmFlow = "payout_flow"

// retryOnFailure escalates a failed attempt according to the merchant's GSM
// configuration: first across the remaining routed connectors, then on the
// connector of the current attempt.
func (s *Service) retryOnFailure(ctx context.Context, m payout.MerchantAccount, d *PayoutData, ct *routing.CallType) error {
	if !d.ShouldCallGsm() {
		return nil
	}

	if ct.Kind == routing.Retryable && s.gsm.ShouldCallGsm(ctx, m.MerchantID, routing.MultiConnector) {
		next := func() (connector.Connector, bool, error) {
			name, ok := ct.Next()
			if !ok {
				return nil, false, nil
			}
			conn, err := s.connector(name)
			return conn, true, err
		}
		if err := s.retryWithGsm(ctx, m, d, next); err != nil {
			return err
		}
	}

	if d.ShouldCallGsm() && s.gsm.ShouldCallGsm(ctx, m.MerchantID, routing.SingleConnector) {
		conn, err := s.connector(d.Attempt.Connector)
		if err != nil {
			return err
		}
		same := func() (connector.Connector, bool, error) {
			return conn, true, nil
		}
		if err := s.retryWithGsm(ctx, m, d, same); err != nil {
			return err
		}
	}
	return nil
}

// retryWithGsm replays the pass on a fresh attempt while the GSM rule for the
// last failure says retry and the merchant's retry budget lasts.
func (s *Service) retryWithGsm(ctx context.Context, m payout.MerchantAccount, d *PayoutData, next func() (connector.Connector, bool, error)) error {
	retries := s.gsm.MaxRetries(ctx, m.MerchantID)

	for retries > 0 && d.ShouldCallGsm() {
		key := payout.GsmKey{
			Connector: d.Attempt.Connector,
			Flow:      gsmFlow,
			SubFlow:   string(d.failedFlow),
			Code:      d.Attempt.ErrorCode,
			Message:   d.Attempt.ErrorMessage,
		}
		decision, err := s.gsm.Decision(ctx, key)
		if err != nil {
			return internal("Error reading gateway status mapping", err)
		}

		switch decision {
		case payout.GsmRetry:
			conn, ok, err := next()
			if err != nil {
				return err
			}
			if !ok {
				log.Printf("No connector left to retry payout %s", d.Payout.PayoutID)
				return nil
			}
			if err := s.startRetryAttempt(ctx, m, d); err != nil {
				return err
			}
			log.Printf("Retrying payout %s on %s as attempt %s", d.Payout.PayoutID, conn.Name(), d.Attempt.PayoutAttemptID)
			if err := s.callConnector(ctx, m, conn, d); err != nil {
				return err
			}
			retries--
		case payout.GsmRequeue:
			log.Printf("GSM requeue for payout %s is not supported, keeping failed attempt %s", d.Payout.PayoutID, d.Attempt.PayoutAttemptID)
			return nil
		default:
			return nil
		}
	}
	return nil
}
