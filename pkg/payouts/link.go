package payouts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/zoff-tech/go-payouts/pkg/payout"
)

// LinkData is the session stored with a payout link and rendered by the hosted
// page.
type LinkData struct {
	PayoutLinkID   string          `json:"payout_link_id"`
	CustomerID     string          `json:"customer_id"`
	PayoutID       string          `json:"payout_id"`
	Link           string          `json:"link"`
	ClientSecret   string          `json:"client_secret"`
	SessionExpiry  time.Time       `json:"session_expiry"`
	UIConfig       payout.UIConfig `json:"ui_config"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	AllowedDomains []string        `json:"allowed_domains"`
}

func (s *Service) createPayoutLink(ctx context.Context, m payout.MerchantAccount, d *PayoutData, p *payout.Payout, req *LinkRequest) (*payout.PayoutLink, error) {
	cfg := d.Profile.PayoutLinkConfig
	if cfg == nil {
		return nil, &APIError{Kind: KindLinkConfiguration, Message: "payout_link_config is not set for profile " + d.Profile.ProfileID}
	}
	if len(cfg.AllowedDomains) == 0 {
		return nil, &APIError{Kind: KindLinkConfiguration, Message: "allowed_domains must be configured to create a payout link"}
	}

	ui := cfg.UIConfig
	expiresIn := s.settings.LinkExpiry
	if req != nil {
		if req.UIConfig != nil {
			ui = mergeUIConfig(ui, *req.UIConfig)
		}
		if req.SessionExpiry > 0 {
			expiresIn = time.Duration(req.SessionExpiry) * time.Second
		}
	}

	base := s.settings.BaseURL
	if cfg.DomainName != "" {
		base = "https://" + cfg.DomainName
	}
	url := fmt.Sprintf("%s/payout_link/%s/%s", strings.TrimRight(base, "/"), m.MerchantID, p.PayoutID)

	now := s.now().UTC()
	linkID := generateID("payout_link")
	data := LinkData{
		PayoutLinkID:   linkID,
		CustomerID:     p.CustomerID,
		PayoutID:       p.PayoutID,
		Link:           url,
		ClientSecret:   p.ClientSecret,
		SessionExpiry:  now.Add(expiresIn),
		UIConfig:       ui,
		Amount:         p.Amount,
		Currency:       p.DestinationCurrency,
		AllowedDomains: cfg.AllowedDomains,
	}
	raw, err := sonic.Marshal(data)
	if err != nil {
		return nil, internal("Encoding payout link data", err)
	}

	link, err := s.store.InsertPayoutLink(ctx, &payout.PayoutLink{
		LinkID:           linkID,
		PrimaryReference: p.PayoutID,
		MerchantID:       m.MerchantID,
		LinkStatus:       payout.LinkInitiated,
		LinkData:         raw,
		URL:              url,
		ReturnURL:        p.ReturnURL,
		Expiry:           data.SessionExpiry,
		CreatedAt:        now,
		LastModifiedAt:   now,
	}, m.StorageScheme)
	if err != nil {
		return nil, storageError("payout_link", err)
	}
	return link, nil
}

func mergeUIConfig(base, override payout.UIConfig) payout.UIConfig {
	if override.Logo != "" {
		base.Logo = override.Logo
	}
	if override.MerchantName != "" {
		base.MerchantName = override.MerchantName
	}
	if override.Theme != "" {
		base.Theme = override.Theme
	}
	return base
}
