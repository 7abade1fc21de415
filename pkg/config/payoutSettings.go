package config

import "time"

// PayoutSettings tunes the payout core.
type PayoutSettings struct {
	// DefaultEligibility is used when a connector leaves the eligibility flag unset.
	DefaultEligibility bool          `mapstructure:"default_eligibility"`
	OnboardingDelay    time.Duration `mapstructure:"onboarding_delay" validate:"gt=0"`
	BaseURL            string        `mapstructure:"base_url" validate:"required,url"`
	LinkExpiry         time.Duration `mapstructure:"link_expiry" validate:"gt=0"`
	MaxAutoRetries     int           `mapstructure:"max_auto_retries" validate:"gte=0"`
	TempLockerTTL      time.Duration `mapstructure:"temp_locker_ttl" validate:"gt=0"`
	// EligibleConnectors restricts routing when non-empty.
	EligibleConnectors []string `mapstructure:"eligible_connectors"`
}

// ConnectorSettings describes one HTTP connector and its capabilities.
type ConnectorSettings struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`

	// Payout types (bank, card, wallet) for which the capability is offered.
	Eligibility     []string `mapstructure:"eligibility" validate:"dive,oneof=bank card wallet"`
	CreateRecipient []string `mapstructure:"create_recipient" validate:"dive,oneof=bank card wallet"`
	InstantPayout   []string `mapstructure:"instant_payout" validate:"dive,oneof=bank card wallet"`

	VendorDisburseAccount bool `mapstructure:"vendor_disburse_account"`
	Quote                 bool `mapstructure:"quote"`
	AccessToken           bool `mapstructure:"access_token"`
}
