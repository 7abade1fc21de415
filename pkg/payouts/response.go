package payouts

import (
	"encoding/json"
	"time"

	"github.com/zoff-tech/go-payouts/pkg/payout"
)

// CustomerDetails is the customer projection on a payout response.
type CustomerDetails struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	PhoneCountryCode string `json:"phone_country_code,omitempty"`
}

// LinkResponse is the payout link projection.
type LinkResponse struct {
	PayoutLinkID string `json:"payout_link_id"`
	Link         string `json:"link"`
}

// PayoutResponse is what every payout operation returns.
type PayoutResponse struct {
	PayoutID               string           `json:"payout_id"`
	MerchantID             string           `json:"merchant_id"`
	Amount                 int64            `json:"amount"`
	Currency               string           `json:"currency"`
	Connector              string           `json:"connector,omitempty"`
	PayoutType             payout.Type      `json:"payout_type,omitempty"`
	Billing                *payout.Address  `json:"billing,omitempty"`
	CustomerID             string           `json:"customer_id,omitempty"`
	Customer               *CustomerDetails `json:"customer,omitempty"`
	AutoFulfill            bool             `json:"auto_fulfill"`
	Recurring              bool             `json:"recurring"`
	ClientSecret           string           `json:"client_secret,omitempty"`
	ReturnURL              string           `json:"return_url,omitempty"`
	BusinessCountry        string           `json:"business_country,omitempty"`
	BusinessLabel          string           `json:"business_label,omitempty"`
	Description            string           `json:"description,omitempty"`
	EntityType             string           `json:"entity_type"`
	Metadata               json.RawMessage  `json:"metadata,omitempty"`
	Status                 payout.Status    `json:"status"`
	ErrorCode              string           `json:"error_code,omitempty"`
	ErrorMessage           string           `json:"error_message,omitempty"`
	ProfileID              string           `json:"profile_id"`
	Created                time.Time        `json:"created"`
	ConnectorTransactionID string           `json:"connector_transaction_id,omitempty"`
	Priority               string           `json:"priority,omitempty"`
	AttemptCount           int              `json:"attempt_count"`
	PayoutLink             *LinkResponse    `json:"payout_link,omitempty"`
}

func buildResponse(d *PayoutData) *PayoutResponse {
	p, a := d.Payout, d.Attempt
	resp := &PayoutResponse{
		PayoutID:               p.PayoutID,
		MerchantID:             p.MerchantID,
		Amount:                 p.Amount,
		Currency:               p.DestinationCurrency,
		Connector:              a.Connector,
		PayoutType:             p.PayoutType,
		Billing:                d.Billing,
		CustomerID:             p.CustomerID,
		AutoFulfill:            p.AutoFulfill,
		Recurring:              p.Recurring,
		ClientSecret:           p.ClientSecret,
		ReturnURL:              p.ReturnURL,
		BusinessCountry:        a.BusinessCountry,
		BusinessLabel:          a.BusinessLabel,
		Description:            p.Description,
		EntityType:             p.EntityType,
		Metadata:               p.Metadata,
		Status:                 a.Status,
		ErrorCode:              a.ErrorCode,
		ErrorMessage:           a.ErrorMessage,
		ProfileID:              p.ProfileID,
		Created:                p.CreatedAt,
		ConnectorTransactionID: a.ConnectorPayoutID,
		Priority:               p.Priority,
		AttemptCount:           p.AttemptCount,
	}
	if d.Failure != nil {
		if resp.ErrorCode == "" {
			resp.ErrorCode = d.Failure.ErrorCode
		}
		if resp.ErrorMessage == "" {
			resp.ErrorMessage = d.Failure.ErrorMessage
		}
	}
	if c := d.Customer; c != nil {
		resp.Customer = &CustomerDetails{
			ID:               c.CustomerID,
			Name:             c.Name,
			Email:            c.Email,
			Phone:            c.Phone,
			PhoneCountryCode: c.PhoneCountryCode,
		}
	}
	if d.Link != nil {
		resp.PayoutLink = &LinkResponse{PayoutLinkID: d.Link.LinkID, Link: d.Link.URL}
	}
	return resp
}
