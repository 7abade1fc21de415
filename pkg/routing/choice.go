package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/zoff-tech/go-payouts/pkg/payout"
)

var (
	// ErrSessionMultiple is returned for session-style routing, which payouts do not support.
	ErrSessionMultiple = errors.New("session routing is not supported for payouts")
	// ErrNoConnector is returned when routing leaves no connector to call.
	ErrNoConnector = errors.New("no eligible connector available for payout")
	// ErrInvalidAlgorithm is returned for malformed straight-through routing algorithms.
	ErrInvalidAlgorithm = errors.New("invalid payout routing algorithm")
)

// ChoiceKind is how the connector list was obtained.
type ChoiceKind int

const (
	// ChoiceStraightThrough uses a routing algorithm supplied with the request.
	ChoiceStraightThrough ChoiceKind = iota
	// ChoiceDecide resolves connectors from the attempt, then the profile.
	ChoiceDecide
	// ChoiceSessionMultiple lists every connector for display; rejected for payouts.
	ChoiceSessionMultiple
)

// Kind is the shape of a connector call plan.
type Kind int

const (
	PreDetermined Kind = iota
	Retryable
)

func (k Kind) String() string {
	if k == Retryable {
		return "retryable"
	}
	return "pre_determined"
}

// Request carries everything needed to pick connectors for one orchestration pass.
type Request struct {
	// Connector is the connector already recorded on the attempt or given by the caller.
	Connector string
	// Algorithm is a straight-through routing algorithm supplied with the request.
	Algorithm json.RawMessage
	// Profile supplies the fallback routing algorithm and default connectors.
	Profile *payout.BusinessProfile
	// EligibleConnectors restricts the result when non-empty.
	EligibleConnectors []string
	Session            bool
}

// Choice returns how connectors will be resolved for the request.
func (r Request) Choice() ChoiceKind {
	switch {
	case r.Session:
		return ChoiceSessionMultiple
	case len(r.Algorithm) > 0:
		return ChoiceStraightThrough
	default:
		return ChoiceDecide
	}
}

// CallType is the ordered plan of connectors for a pass. Connectors are consumed
// from the head and never reordered.
type CallType struct {
	Kind       Kind
	Connectors []string
	next       int
}

// Next pops the head of the remaining connectors.
func (c *CallType) Next() (string, bool) {
	if c.next >= len(c.Connectors) {
		return "", false
	}
	name := c.Connectors[c.next]
	c.next++
	return name, true
}

// Remaining is the number of connectors not yet popped.
func (c *CallType) Remaining() int {
	return len(c.Connectors) - c.next
}

// Algorithm is the serialized straight-through routing algorithm:
// {"type":"single","data":"wise"} or {"type":"priority","data":["wise","adyen"]}.
type Algorithm struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseAlgorithm returns the ordered connectors named by a routing algorithm.
func ParseAlgorithm(raw json.RawMessage) ([]string, error) {
	var algo Algorithm
	if err := json.Unmarshal(raw, &algo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAlgorithm, err)
	}
	switch algo.Type {
	case "single":
		var name string
		if err := json.Unmarshal(algo.Data, &name); err != nil || name == "" {
			return nil, fmt.Errorf("%w: single expects a connector name", ErrInvalidAlgorithm)
		}
		return []string{name}, nil
	case "priority":
		var names []string
		if err := json.Unmarshal(algo.Data, &names); err != nil || len(names) == 0 {
			return nil, fmt.Errorf("%w: priority expects a non-empty connector list", ErrInvalidAlgorithm)
		}
		return names, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidAlgorithm, algo.Type)
	}
}

// Decide resolves the connector plan for a pass.
func Decide(req Request) (*CallType, error) {
	var (
		connectors []string
		err        error
	)

	switch req.Choice() {
	case ChoiceSessionMultiple:
		return nil, ErrSessionMultiple
	case ChoiceStraightThrough:
		connectors, err = ParseAlgorithm(req.Algorithm)
	case ChoiceDecide:
		connectors, err = decideConnectors(req)
	}
	if err != nil {
		return nil, err
	}

	connectors = filterEligible(connectors, req.EligibleConnectors)
	switch len(connectors) {
	case 0:
		return nil, ErrNoConnector
	case 1:
		return &CallType{Kind: PreDetermined, Connectors: connectors}, nil
	default:
		return &CallType{Kind: Retryable, Connectors: connectors}, nil
	}
}

func decideConnectors(req Request) ([]string, error) {
	if req.Connector != "" {
		return []string{req.Connector}, nil
	}
	if req.Profile == nil {
		return nil, nil
	}
	if len(req.Profile.PayoutRoutingAlgorithm) > 0 && string(req.Profile.PayoutRoutingAlgorithm) != "null" {
		return ParseAlgorithm(req.Profile.PayoutRoutingAlgorithm)
	}
	return slices.Clone(req.Profile.DefaultPayoutConnectors), nil
}

func filterEligible(connectors, eligible []string) []string {
	if len(eligible) == 0 {
		return connectors
	}
	out := connectors[:0:0]
	for _, c := range connectors {
		if slices.Contains(eligible, c) {
			out = append(out, c)
		}
	}
	return out
}
