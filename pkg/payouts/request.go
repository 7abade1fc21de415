package payouts

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/store"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// LinkRequest customizes the payout link created with a payout.
type LinkRequest struct {
	// SessionExpiry in seconds; the configured link expiry applies when zero.
	SessionExpiry int              `json:"session_expiry,omitempty" validate:"omitempty,gte=60,lte=7890000"`
	UIConfig      *payout.UIConfig `json:"ui_config,omitempty"`
}

// CreateRequest creates a payout and, when Confirm is set, runs it.
type CreateRequest struct {
	PayoutID            string             `json:"payout_id,omitempty" validate:"omitempty,max=64"`
	Amount              int64              `json:"amount" validate:"gte=0"`
	Currency            string             `json:"currency" validate:"required,len=3"`
	DestinationCurrency string             `json:"destination_currency,omitempty" validate:"omitempty,len=3"`
	CustomerID          string             `json:"customer_id" validate:"required,max=64"`
	Connectors          []string           `json:"connector,omitempty"`
	Routing             json.RawMessage    `json:"routing,omitempty"`
	Confirm             bool               `json:"confirm"`
	PayoutType          payout.Type        `json:"payout_type,omitempty" validate:"omitempty,oneof=bank card wallet"`
	MethodData          *payout.MethodData `json:"payout_method_data,omitempty"`
	PayoutToken         string             `json:"payout_token,omitempty"`
	Billing             *payout.Address    `json:"billing,omitempty"`
	AutoFulfill         bool               `json:"auto_fulfill"`
	Recurring           bool               `json:"recurring"`
	ReturnURL           string             `json:"return_url,omitempty" validate:"omitempty,url"`
	BusinessCountry     string             `json:"business_country,omitempty" validate:"omitempty,len=2"`
	BusinessLabel       string             `json:"business_label,omitempty"`
	Description         string             `json:"description,omitempty" validate:"max=255"`
	EntityType          string             `json:"entity_type,omitempty" validate:"omitempty,oneof=individual company non_profit public_sector natural_person lowercase personal"`
	Metadata            json.RawMessage    `json:"metadata,omitempty"`
	Priority            string             `json:"priority,omitempty" validate:"omitempty,oneof=instant fast regular wire cross_border internal"`
	ProfileID           string             `json:"profile_id,omitempty"`
	PayoutLink          bool               `json:"payout_link"`
	PayoutLinkConfig    *LinkRequest       `json:"payout_link_config,omitempty"`
}

// UpdateRequest changes a payout that has not reached a connector yet. Nil fields
// keep the stored value. Confirm runs the payout after the update.
type UpdateRequest struct {
	Amount              *int64             `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Currency            *string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	DestinationCurrency *string            `json:"destination_currency,omitempty" validate:"omitempty,len=3"`
	Connectors          []string           `json:"connector,omitempty"`
	Routing             json.RawMessage    `json:"routing,omitempty"`
	Confirm             *bool              `json:"confirm,omitempty"`
	PayoutType          *payout.Type       `json:"payout_type,omitempty" validate:"omitempty,oneof=bank card wallet"`
	MethodData          *payout.MethodData `json:"payout_method_data,omitempty"`
	PayoutToken         string             `json:"payout_token,omitempty"`
	AutoFulfill         *bool              `json:"auto_fulfill,omitempty"`
	Recurring           *bool              `json:"recurring,omitempty"`
	ReturnURL           *string            `json:"return_url,omitempty" validate:"omitempty,url"`
	BusinessCountry     *string            `json:"business_country,omitempty" validate:"omitempty,len=2"`
	BusinessLabel       *string            `json:"business_label,omitempty"`
	Description         *string            `json:"description,omitempty" validate:"omitempty,max=255"`
	EntityType          *string            `json:"entity_type,omitempty" validate:"omitempty,oneof=individual company non_profit public_sector natural_person lowercase personal"`
	Metadata            json.RawMessage    `json:"metadata,omitempty"`
	Priority            *string            `json:"priority,omitempty" validate:"omitempty,oneof=instant fast regular wire cross_border internal"`
}

// ListConstraints filters List.
type ListConstraints struct {
	CustomerID string          `json:"customer_id,omitempty"`
	Statuses   []payout.Status `json:"status,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

var validate = validator.New()

// checkStruct runs the struct tags and reports the first failing field.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		if fe.Tag() == "required" {
			return missingField(field)
		}
		return invalidRequest("Invalid value for %s: failed %s validation", field, fe.Tag())
	}
	return internal("Validating request", err)
}

// Validate checks field formats and the cross-field rules of a create request.
func (r *CreateRequest) Validate() error {
	if err := checkStruct(r); err != nil {
		return err
	}
	if r.Confirm && r.Amount <= 0 {
		return invalidRequest("amount must be greater than zero to confirm a payout")
	}
	if r.Confirm && !r.hasMethodData() {
		return missingField("payout_method_data")
	}
	if r.MethodData != nil {
		if err := checkMethodType(r.MethodData, r.PayoutType); err != nil {
			return err
		}
	}
	if r.PayoutLink && r.Confirm {
		return invalidRequest("A payout link cannot be created for a payout that is confirmed at creation")
	}
	if r.PayoutLinkConfig != nil && !r.PayoutLink {
		return invalidRequest("payout_link_config is only accepted when payout_link is true")
	}
	if len(r.Routing) > 0 && !json.Valid(r.Routing) {
		return invalidRequest("routing must be valid JSON")
	}
	return nil
}

// Validate checks field formats of an update request.
func (r *UpdateRequest) Validate() error {
	if err := checkStruct(r); err != nil {
		return err
	}
	if r.MethodData != nil && r.PayoutType != nil {
		if err := checkMethodType(r.MethodData, *r.PayoutType); err != nil {
			return err
		}
	} else if r.MethodData != nil {
		if _, err := r.MethodData.Type(); err != nil {
			return invalidRequest("%v", err)
		}
	}
	if len(r.Routing) > 0 && !json.Valid(r.Routing) {
		return invalidRequest("routing must be valid JSON")
	}
	return nil
}

func checkMethodType(data *payout.MethodData, declared payout.Type) error {
	if declared == "" {
		return missingField("payout_type")
	}
	actual, err := data.Type()
	if err != nil {
		return invalidRequest("%v", err)
	}
	if actual != declared {
		return invalidRequest("payout_method_data is %s but payout_type is %s", actual, declared)
	}
	return nil
}

// filter resolves the store filter for the constraints.
func (c ListConstraints) filter() (store.PayoutFilter, error) {
	limit := c.Limit
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit < 1 || limit > maxListLimit {
		return store.PayoutFilter{}, invalidRequest("limit should be in between 1 and %d", maxListLimit)
	}
	for _, s := range c.Statuses {
		if _, ok := payout.ParseStatus(string(s)); !ok {
			return store.PayoutFilter{}, invalidRequest("unknown payout status %s", s)
		}
	}
	return store.PayoutFilter{CustomerID: c.CustomerID, Statuses: c.Statuses, Limit: limit}, nil
}

func (r *CreateRequest) entityType() string {
	if r.EntityType == "" {
		return "individual"
	}
	return r.EntityType
}

func (r *CreateRequest) destinationCurrency() string {
	if r.DestinationCurrency == "" {
		return r.Currency
	}
	return r.DestinationCurrency
}

func (r *CreateRequest) hasMethodData() bool {
	return r.MethodData != nil || r.PayoutToken != ""
}
