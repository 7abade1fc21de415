package routing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/store"
)

// RetryType selects which merchant switch gates GSM-driven retries.
type RetryType string

const (
	SingleConnector RetryType = "single_connector"
	MultiConnector  RetryType = "multiple_connector"
)

// ConfigReader reads merchant-scoped key/value configuration.
type ConfigReader interface {
	FindConfig(ctx context.Context, key string) (string, error)
}

// GsmReader reads gateway status mapping rules.
type GsmReader interface {
	FindGsmRule(ctx context.Context, key payout.GsmKey) (*payout.GsmRule, error)
}

// GsmPolicy answers the retry questions of the orchestrator from stored
// configuration. Missing keys and rules fall back to "do not retry".
type GsmPolicy struct {
	configs           ConfigReader
	rules             GsmReader
	defaultMaxRetries int
}

func NewGsmPolicy(configs ConfigReader, rules GsmReader, defaultMaxRetries int) *GsmPolicy {
	return &GsmPolicy{configs: configs, rules: rules, defaultMaxRetries: defaultMaxRetries}
}

func gsmConfigKey(merchantID string, rt RetryType) string {
	return fmt.Sprintf("should_call_gsm_%s_payout_%s", rt, merchantID)
}

func maxRetriesConfigKey(merchantID string) string {
	return "max_auto_payout_retries_enabled_" + merchantID
}

// ShouldCallGsm reports whether the merchant enabled retries of the given type.
func (p *GsmPolicy) ShouldCallGsm(ctx context.Context, merchantID string, rt RetryType) bool {
	raw, err := p.configs.FindConfig(ctx, gsmConfigKey(merchantID, rt))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("Failed to read GSM config for merchant %s: %v", merchantID, err)
		}
		return false
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Invalid GSM config %q for merchant %s", raw, merchantID)
		return false
	}
	return enabled
}

// MaxRetries is the number of automatic retries allowed after the first attempt.
func (p *GsmPolicy) MaxRetries(ctx context.Context, merchantID string) int {
	raw, err := p.configs.FindConfig(ctx, maxRetriesConfigKey(merchantID))
	if err != nil {
		return p.defaultMaxRetries
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		log.Printf("Invalid max retries config %q for merchant %s", raw, merchantID)
		return p.defaultMaxRetries
	}
	return n
}

// Decision classifies a connector failure. Unknown failures get GsmDoDefault.
func (p *GsmPolicy) Decision(ctx context.Context, key payout.GsmKey) (payout.GsmDecision, error) {
	rule, err := p.rules.FindGsmRule(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return payout.GsmDoDefault, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading gsm rule: %w", err)
	}
	return rule.Decision, nil
}
