package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/zoff-tech/go-payouts/pkg/payout"
)

// Flow names a connector operation. They also appear in GSM rules and HTTP paths.
type Flow string

const (
	FlowEligibility            Flow = "eligibility"
	FlowCreateRecipient        Flow = "recipient_create"
	FlowCreateRecipientAccount Flow = "recipient_account_create"
	FlowCreate                 Flow = "create"
	FlowCancel                 Flow = "cancel"
	FlowFulfill                Flow = "fulfill"
	FlowSync                   Flow = "sync"
	FlowQuote                  Flow = "quote"
	FlowAccessToken            Flow = "access_token"
)

// TransportErrorCode is recorded on attempts whose connector call failed below the
// protocol level (timeouts, refused connections, undecodable bodies).
const TransportErrorCode = "connector_transport_error"

// Connector is implemented once per payout processor. Capability predicates are
// consulted before the corresponding operation is called.
type Connector interface {
	Name() string

	SupportsEligibility(t payout.Type) bool
	SupportsCreateRecipient(t payout.Type) bool
	SupportsVendorDisburseAccountCreate() bool
	SupportsInstantPayout(t payout.Type) bool
	RequiresQuote() bool
	RequiresAccessToken() bool

	Eligibility(ctx context.Context, req *RouterData) (*ResponseData, error)
	CreateRecipient(ctx context.Context, req *RouterData) (*ResponseData, error)
	CreateRecipientAccount(ctx context.Context, req *RouterData) (*ResponseData, error)
	Create(ctx context.Context, req *RouterData) (*ResponseData, error)
	Cancel(ctx context.Context, req *RouterData) (*ResponseData, error)
	Fulfill(ctx context.Context, req *RouterData) (*ResponseData, error)
	Sync(ctx context.Context, req *RouterData) (*ResponseData, error)
	Quote(ctx context.Context, req *RouterData) (*ResponseData, error)
	AccessToken(ctx context.Context, req *RouterData) (*AccessToken, error)
}

// RouterData is the request context handed to a connector call.
type RouterData struct {
	Flow                Flow               `json:"flow"`
	MerchantID          string             `json:"merchant_id"`
	PayoutID            string             `json:"payout_id"`
	AttemptID           string             `json:"payout_attempt_id"`
	ConnectorPayoutID   string             `json:"connector_payout_id,omitempty"`
	ConnectorCustomerID string             `json:"connector_customer_id,omitempty"`
	QuoteID             string             `json:"quote_id,omitempty"`
	Amount              int64              `json:"amount"`
	SourceCurrency      string             `json:"source_currency"`
	DestinationCurrency string             `json:"destination_currency"`
	PayoutType          payout.Type        `json:"payout_type"`
	EntityType          string             `json:"entity_type"`
	Priority            string             `json:"priority,omitempty"`
	MethodData          *payout.MethodData `json:"payout_method_data,omitempty"`
	Address             *payout.Address    `json:"billing,omitempty"`
	Customer            *payout.Customer   `json:"customer,omitempty"`
	AccessToken         string             `json:"-"`
}

// ResponseData is what a successful connector call reports. Nil fields mean the
// connector did not say.
type ResponseData struct {
	Status                            *payout.Status `json:"status,omitempty"`
	ConnectorPayoutID                 string         `json:"connector_payout_id,omitempty"`
	PayoutEligible                    *bool          `json:"payout_eligible,omitempty"`
	ShouldAddNextStepToProcessTracker bool           `json:"should_add_next_step_to_process_tracker"`
	ErrorCode                         string         `json:"error_code,omitempty"`
	ErrorMessage                      string         `json:"error_message,omitempty"`
}

// AccessToken is a bearer credential issued by a connector.
type AccessToken struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"` // seconds
}

// ErrorResponse is a protocol-level rejection from the connector.
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
	StatusCode int    `json:"status_code"`
}

func (e *ErrorResponse) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("connector error %s: %s (%s)", e.Code, e.Message, e.Reason)
	}
	return fmt.Sprintf("connector error %s: %s", e.Code, e.Message)
}

// AsErrorResponse classifies any error returned by a connector call. Errors that are
// not an *ErrorResponse are reported as transport failures.
func AsErrorResponse(err error) *ErrorResponse {
	var er *ErrorResponse
	if errors.As(err, &er) {
		return er
	}
	return &ErrorResponse{Code: TransportErrorCode, Message: err.Error()}
}
