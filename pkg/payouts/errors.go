package payouts

import (
	"errors"
	"fmt"

	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/store"
)

// ErrorKind classifies an APIError for the caller.
type ErrorKind string

const (
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindMissingField      ErrorKind = "missing_field"
	KindNotFound          ErrorKind = "not_found"
	KindDuplicate         ErrorKind = "duplicate"
	KindLinkConfiguration ErrorKind = "link_configuration"
	KindInternal          ErrorKind = "internal"
)

// APIError is returned by Service operations for validation, lookup and storage
// failures. Connector failures are not APIErrors; they end up on the payout.
type APIError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func invalidRequest(format string, args ...any) *APIError {
	return &APIError{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func missingField(field string) *APIError {
	return &APIError{Kind: KindMissingField, Message: "Missing required param: " + field}
}

func notFound(what string) *APIError {
	return &APIError{Kind: KindNotFound, Message: what + " does not exist in our records"}
}

func internal(message string, err error) *APIError {
	return &APIError{Kind: KindInternal, Message: message, Err: err}
}

// storageError maps a store error, keeping not-found and duplicate visible.
func storageError(what string, err error) *APIError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound(what)
	case errors.Is(err, store.ErrDuplicate):
		return &APIError{Kind: KindDuplicate, Message: what + " already exists", Err: err}
	default:
		return internal("Error reading or writing "+what, err)
	}
}

// PayoutFailedError describes a pass that ended in an error state. It is reported
// on the response, not returned as an error.
type PayoutFailedError struct {
	Status       payout.Status `json:"payout_status"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

func (e *PayoutFailedError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("payout failed with status %s: %s (%s)", e.Status, e.ErrorMessage, e.ErrorCode)
	}
	return fmt.Sprintf("payout failed with status %s: %s", e.Status, e.ErrorMessage)
}
