package payout

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type is the payout rail.
type Type string

const (
	TypeBank   Type = "bank"
	TypeCard   Type = "card"
	TypeWallet Type = "wallet"
)

// StorageScheme selects the backing store a record is routed to.
type StorageScheme string

const (
	StoragePostgresOnly StorageScheme = "postgres_only"
	StorageRedisKv      StorageScheme = "redis_kv"
)

// MerchantAccount is the subset of the merchant the payout core needs.
type MerchantAccount struct {
	MerchantID       string        `json:"merchant_id"`
	StorageScheme    StorageScheme `json:"storage_scheme"`
	DefaultProfileID string        `json:"default_profile_id,omitempty"`
}

// Payout is the business intent. It is created once per payout id and only its
// status and attempt bookkeeping change afterwards.
type Payout struct {
	PayoutID            string          `json:"payout_id"`
	MerchantID          string          `json:"merchant_id"`
	CustomerID          string          `json:"customer_id"`
	AddressID           string          `json:"address_id"`
	PayoutType          Type            `json:"payout_type"`
	PayoutMethodID      string          `json:"payout_method_id,omitempty"`
	Amount              int64           `json:"amount"`
	SourceCurrency      string          `json:"source_currency"`
	DestinationCurrency string          `json:"destination_currency"`
	Description         string          `json:"description,omitempty"`
	Recurring           bool            `json:"recurring"`
	AutoFulfill         bool            `json:"auto_fulfill"`
	ReturnURL           string          `json:"return_url,omitempty"`
	EntityType          string          `json:"entity_type"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	Status              Status          `json:"status"`
	AttemptCount        int             `json:"attempt_count"`
	ProfileID           string          `json:"profile_id"`
	Confirm             *bool           `json:"confirm,omitempty"`
	PayoutLinkID        string          `json:"payout_link_id,omitempty"`
	ClientSecret        string          `json:"client_secret,omitempty"`
	Priority            string          `json:"priority,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	LastModifiedAt      time.Time       `json:"last_modified_at"`
}

// IsConfirmed reports whether the payout was created or updated with confirm=true.
func (p *Payout) IsConfirmed() bool {
	return p.Confirm != nil && *p.Confirm
}

// PayoutAttempt is one try of a payout against one connector.
type PayoutAttempt struct {
	PayoutAttemptID     string          `json:"payout_attempt_id"`
	PayoutID            string          `json:"payout_id"`
	CustomerID          string          `json:"customer_id"`
	MerchantID          string          `json:"merchant_id"`
	AddressID           string          `json:"address_id"`
	Connector           string          `json:"connector,omitempty"`
	ConnectorPayoutID   string          `json:"connector_payout_id,omitempty"`
	PayoutToken         string          `json:"payout_token,omitempty"`
	Status              Status          `json:"status"`
	IsEligible          *bool           `json:"is_eligible,omitempty"`
	ErrorCode           string          `json:"error_code,omitempty"`
	ErrorMessage        string          `json:"error_message,omitempty"`
	BusinessCountry     string          `json:"business_country,omitempty"`
	BusinessLabel       string          `json:"business_label,omitempty"`
	ProfileID           string          `json:"profile_id"`
	MerchantConnectorID string          `json:"merchant_connector_id,omitempty"`
	RoutingInfo         json.RawMessage `json:"routing_info,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	LastModifiedAt      time.Time       `json:"last_modified_at"`
}

// AttemptID builds the attempt identifier for the n-th attempt of a payout.
func AttemptID(payoutID string, attemptCount int) string {
	return fmt.Sprintf("%s_%d", payoutID, attemptCount)
}

// AttemptUpdate is a partial update of a payout attempt. Exactly one of the
// pointers is set. A status update keeps the stored connector payout id and
// eligibility flag when it carries none, and always replaces the error fields.
type AttemptUpdate struct {
	Status   *AttemptStatusUpdate
	Routing  *AttemptRoutingUpdate
	Business *AttemptBusinessUpdate
	Token    *string
}

type AttemptStatusUpdate struct {
	ConnectorPayoutID string
	Status            Status
	ErrorCode         string
	ErrorMessage      string
	IsEligible        *bool
}

type AttemptRoutingUpdate struct {
	Connector   string
	RoutingInfo json.RawMessage
}

type AttemptBusinessUpdate struct {
	BusinessCountry string
	BusinessLabel   string
}

// Apply returns a copy of the attempt with the update applied.
func (u AttemptUpdate) Apply(a PayoutAttempt, now time.Time) PayoutAttempt {
	switch {
	case u.Status != nil:
		if u.Status.ConnectorPayoutID != "" {
			a.ConnectorPayoutID = u.Status.ConnectorPayoutID
		}
		a.Status = u.Status.Status
		a.ErrorCode = u.Status.ErrorCode
		a.ErrorMessage = u.Status.ErrorMessage
		if u.Status.IsEligible != nil {
			a.IsEligible = u.Status.IsEligible
		}
	case u.Routing != nil:
		a.Connector = u.Routing.Connector
		a.RoutingInfo = u.Routing.RoutingInfo
	case u.Business != nil:
		a.BusinessCountry = u.Business.BusinessCountry
		a.BusinessLabel = u.Business.BusinessLabel
	case u.Token != nil:
		a.PayoutToken = *u.Token
	}
	a.LastModifiedAt = now
	return a
}

// PayoutUpdate is a partial update of a payout.
type PayoutUpdate struct {
	Status         *Status
	AttemptCount   *int
	PayoutMethodID *string
	Fields         *PayoutFieldsUpdate
}

// PayoutFieldsUpdate carries the caller-editable fields of a payout.
type PayoutFieldsUpdate struct {
	Amount              int64
	SourceCurrency      string
	DestinationCurrency string
	Description         string
	Recurring           bool
	AutoFulfill         bool
	ReturnURL           string
	EntityType          string
	Metadata            json.RawMessage
	PayoutType          Type
	Confirm             *bool
	Priority            string
	Status              Status
}

// Apply returns a copy of the payout with the update applied.
func (u PayoutUpdate) Apply(p Payout, now time.Time) Payout {
	switch {
	case u.Status != nil:
		p.Status = *u.Status
	case u.AttemptCount != nil:
		p.AttemptCount = *u.AttemptCount
	case u.PayoutMethodID != nil:
		p.PayoutMethodID = *u.PayoutMethodID
	case u.Fields != nil:
		f := u.Fields
		p.Amount = f.Amount
		p.SourceCurrency = f.SourceCurrency
		p.DestinationCurrency = f.DestinationCurrency
		p.Description = f.Description
		p.Recurring = f.Recurring
		p.AutoFulfill = f.AutoFulfill
		p.ReturnURL = f.ReturnURL
		p.EntityType = f.EntityType
		p.Metadata = f.Metadata
		p.PayoutType = f.PayoutType
		p.Confirm = f.Confirm
		p.Priority = f.Priority
		p.Status = f.Status
	}
	p.LastModifiedAt = now
	return p
}

// LinkStatus is the state of a hosted payout link.
type LinkStatus string

const (
	LinkInitiated LinkStatus = "initiated"
	LinkSubmitted LinkStatus = "submitted"
)

// PayoutLink is a customer-facing resumable session over a payout.
type PayoutLink struct {
	LinkID           string          `json:"link_id"`
	PrimaryReference string          `json:"primary_reference"`
	MerchantID       string          `json:"merchant_id"`
	LinkStatus       LinkStatus      `json:"link_status"`
	LinkData         json.RawMessage `json:"link_data"`
	URL              string          `json:"url"`
	ReturnURL        string          `json:"return_url,omitempty"`
	Expiry           time.Time       `json:"expiry"`
	CreatedAt        time.Time       `json:"created_at"`
	LastModifiedAt   time.Time       `json:"last_modified_at"`
}

// UIConfig is the look of a payout link page.
type UIConfig struct {
	Logo         string `json:"logo,omitempty"`
	MerchantName string `json:"merchant_name,omitempty"`
	Theme        string `json:"theme,omitempty"`
}

// LinkConfig is the payout link configuration of a business profile.
type LinkConfig struct {
	AllowedDomains []string `json:"allowed_domains"`
	DomainName     string   `json:"domain_name,omitempty"`
	UIConfig       UIConfig `json:"ui_config"`
}

// BusinessProfile is the profile a payout is created under.
type BusinessProfile struct {
	ProfileID               string          `json:"profile_id"`
	MerchantID              string          `json:"merchant_id"`
	PayoutRoutingAlgorithm  json.RawMessage `json:"payout_routing_algorithm,omitempty"`
	DefaultPayoutConnectors []string        `json:"default_payout_connectors,omitempty"`
	PayoutLinkConfig        *LinkConfig     `json:"payout_link_config,omitempty"`
}

// Customer is the payee record.
type Customer struct {
	CustomerID        string            `json:"customer_id"`
	MerchantID        string            `json:"merchant_id"`
	Name              string            `json:"name,omitempty"`
	Email             string            `json:"email,omitempty"`
	Phone             string            `json:"phone,omitempty"`
	PhoneCountryCode  string            `json:"phone_country_code,omitempty"`
	ConnectorCustomer map[string]string `json:"connector_customer,omitempty"`
}

// Address is a billing address.
type Address struct {
	AddressID   string `json:"address_id"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
	Line1       string `json:"line1,omitempty"`
	Line2       string `json:"line2,omitempty"`
	Line3       string `json:"line3,omitempty"`
	Zip         string `json:"zip,omitempty"`
	State       string `json:"state,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Email       string `json:"email,omitempty"`
}
