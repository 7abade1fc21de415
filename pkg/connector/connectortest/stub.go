// Package connectortest provides a programmable in-memory connector for tests.
package connectortest

import (
	"context"
	"slices"
	"sync"

	"github.com/zoff-tech/go-payouts/pkg/connector"
	"github.com/zoff-tech/go-payouts/pkg/payout"
)

// Result is the canned answer for one flow.
type Result struct {
	Response *connector.ResponseData
	Err      error
}

// Stub records every call and answers from Results. A flow without a result
// answers with an empty ResponseData, which keeps the current status.
type Stub struct {
	ConnectorName string

	Eligible        []payout.Type
	Recipient       []payout.Type
	Instant         []payout.Type
	DisburseAccount bool
	NeedsQuote      bool
	NeedsToken      bool

	Results map[connector.Flow]Result
	Token   *connector.AccessToken

	mu       sync.Mutex
	calls    []connector.Flow
	requests []connector.RouterData
}

func New(name string) *Stub {
	return &Stub{ConnectorName: name, Results: make(map[connector.Flow]Result)}
}

// On sets the result for a flow and returns the stub for chaining.
func (s *Stub) On(flow connector.Flow, resp *connector.ResponseData, err error) *Stub {
	s.Results[flow] = Result{Response: resp, Err: err}
	return s
}

// Calls returns the flows invoked so far, in order.
func (s *Stub) Calls() []connector.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Called reports whether the flow was invoked at least once.
func (s *Stub) Called(flow connector.Flow) bool {
	return slices.Contains(s.Calls(), flow)
}

// Requests returns the request payloads seen so far, in order.
func (s *Stub) Requests() []connector.RouterData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

func (s *Stub) Name() string { return s.ConnectorName }

func (s *Stub) SupportsEligibility(t payout.Type) bool     { return slices.Contains(s.Eligible, t) }
func (s *Stub) SupportsCreateRecipient(t payout.Type) bool { return slices.Contains(s.Recipient, t) }
func (s *Stub) SupportsVendorDisburseAccountCreate() bool  { return s.DisburseAccount }
func (s *Stub) SupportsInstantPayout(t payout.Type) bool   { return slices.Contains(s.Instant, t) }
func (s *Stub) RequiresQuote() bool                        { return s.NeedsQuote }
func (s *Stub) RequiresAccessToken() bool                  { return s.NeedsToken }

func (s *Stub) record(flow connector.Flow, req *connector.RouterData) (*connector.ResponseData, error) {
	s.mu.Lock()
	s.calls = append(s.calls, flow)
	s.requests = append(s.requests, *req)
	s.mu.Unlock()

	r, ok := s.Results[flow]
	if !ok {
		return &connector.ResponseData{}, nil
	}
	if r.Err != nil {
		return nil, r.Err
	}
	resp := *r.Response
	return &resp, nil
}

func (s *Stub) Eligibility(_ context.Context, req *connector.RouterData) (*connector.ResponseData, error) {
	return s.record(connector.FlowEligibility, req)
}

func (s *Stub) CreateRecipient(_ context.Context, req *connector.RouterData) (*connector.ResponseData, error) {
	return s.record(connector.FlowCreateRecipient, req)
}

func (s *Stub) CreateRecipientAccount(_ context.Context, req *connector.RouterData) (*connector.ResponseData, error) {
	return s.record(connector.FlowCreateRecipientAccount, req)
}

func (s *Stub) Create(_ context.Context, req *connector.RouterData) (*connector.ResponseData, error) {
	return s.record(connector.FlowCreate, req)
}

func (s *Stub) Cancel(_ context.Context, req *connector.RouterData) (*connector.ResponseData, error) {
	return s.record(connector.FlowCancel, req)
}

func (s *Stub) Fulfill(_ context.Context, req *connector.RouterData) (*connector.ResponseData, error) {
	return s.record(connector.FlowFulfill, req)
}

func (s *Stub) Sync(_ context.Context, req *connector.RouterData) (*connector.ResponseData, error) {
	return s.record(connector.FlowSync, req)
}

func (s *Stub) Quote(_ context.Context, req *connector.RouterData) (*connector.ResponseData, error) {
	return s.record(connector.FlowQuote, req)
}

func (s *Stub) AccessToken(_ context.Context, req *connector.RouterData) (*connector.AccessToken, error) {
	if _, err := s.record(connector.FlowAccessToken, req); err != nil {
		return nil, err
	}
	if s.Token == nil {
		return &connector.AccessToken{Token: "token_" + s.ConnectorName, ExpiresIn: 3600}, nil
	}
	return s.Token, nil
}
