package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zoff-tech/go-payouts/pkg/config"
	"github.com/zoff-tech/go-payouts/pkg/payout"
)

const defaultTimeout = 30 * time.Second

// HTTPConnector speaks a JSON protocol to a payout processor gateway: every flow is
// a POST of RouterData to {base}/payouts/{flow}.
type HTTPConnector struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	settings   config.ConnectorSettings
}

func NewHTTPConnector(name string, settings config.ConnectorSettings) *HTTPConnector {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPConnector{
		name:    name,
		baseURL: strings.TrimRight(settings.BaseURL, "/"),
		apiKey:  settings.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		settings: settings,
	}
}

// NewRegistryFromConfig registers one HTTPConnector per configured connector.
func NewRegistryFromConfig(connectors map[string]config.ConnectorSettings) *Registry {
	r := NewRegistry()
	for name, settings := range connectors {
		r.Register(NewHTTPConnector(name, settings))
	}
	return r
}

func (c *HTTPConnector) Name() string { return c.name }

func supports(types []string, t payout.Type) bool {
	return slices.Contains(types, string(t))
}

func (c *HTTPConnector) SupportsEligibility(t payout.Type) bool {
	return supports(c.settings.Eligibility, t)
}

func (c *HTTPConnector) SupportsCreateRecipient(t payout.Type) bool {
	return supports(c.settings.CreateRecipient, t)
}

func (c *HTTPConnector) SupportsVendorDisburseAccountCreate() bool {
	return c.settings.VendorDisburseAccount
}

func (c *HTTPConnector) SupportsInstantPayout(t payout.Type) bool {
	return supports(c.settings.InstantPayout, t)
}

func (c *HTTPConnector) RequiresQuote() bool       { return c.settings.Quote }
func (c *HTTPConnector) RequiresAccessToken() bool { return c.settings.AccessToken }

func (c *HTTPConnector) Eligibility(ctx context.Context, req *RouterData) (*ResponseData, error) {
	return c.call(ctx, FlowEligibility, req)
}

func (c *HTTPConnector) CreateRecipient(ctx context.Context, req *RouterData) (*ResponseData, error) {
	return c.call(ctx, FlowCreateRecipient, req)
}

func (c *HTTPConnector) CreateRecipientAccount(ctx context.Context, req *RouterData) (*ResponseData, error) {
	return c.call(ctx, FlowCreateRecipientAccount, req)
}

func (c *HTTPConnector) Create(ctx context.Context, req *RouterData) (*ResponseData, error) {
	return c.call(ctx, FlowCreate, req)
}

func (c *HTTPConnector) Cancel(ctx context.Context, req *RouterData) (*ResponseData, error) {
	return c.call(ctx, FlowCancel, req)
}

func (c *HTTPConnector) Fulfill(ctx context.Context, req *RouterData) (*ResponseData, error) {
	return c.call(ctx, FlowFulfill, req)
}

func (c *HTTPConnector) Sync(ctx context.Context, req *RouterData) (*ResponseData, error) {
	return c.call(ctx, FlowSync, req)
}

func (c *HTTPConnector) Quote(ctx context.Context, req *RouterData) (*ResponseData, error) {
	return c.call(ctx, FlowQuote, req)
}

// tokenRequest identifies who asks for a token. Payout details never go to
// the token endpoint.
type tokenRequest struct {
	MerchantID string `json:"merchant_id"`
	Connector  string `json:"connector"`
}

func (c *HTTPConnector) AccessToken(ctx context.Context, req *RouterData) (*AccessToken, error) {
	var token AccessToken
	body := tokenRequest{MerchantID: req.MerchantID, Connector: c.name}
	if err := c.post(ctx, FlowAccessToken, c.baseURL+"/oauth/token", body, "", &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (c *HTTPConnector) call(ctx context.Context, flow Flow, req *RouterData) (*ResponseData, error) {
	req.Flow = flow
	var resp ResponseData
	if err := c.post(ctx, flow, fmt.Sprintf("%s/payouts/%s", c.baseURL, flow), req, req.AccessToken, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPConnector) post(ctx context.Context, flow Flow, url string, in any, accessToken string, out any) error {
	body, err := sonic.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", flow, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", flow, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.name, flow, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", flow, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{}
		if len(raw) == 0 || sonic.Unmarshal(raw, errResp) != nil || errResp.Code == "" {
			errResp = &ErrorResponse{
				Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
				Message: strings.TrimSpace(string(raw)),
			}
		}
		errResp.StatusCode = resp.StatusCode
		return errResp
	}

	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", flow, err)
	}
	return nil
}
