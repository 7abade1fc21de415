package broker

import (
	"context"
	"fmt"

	"github.com/zoff-tech/go-payouts/pkg/config"
)

// NewBroker returns the broker selected by cfg.Type.
func NewBroker(ctx context.Context, cfg *config.BrokerSettings) (MessageBroker, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMqBroker(ctx, cfg)
	case "gcp-pubsub":
		return NewPubSubClient(ctx, cfg)
	case "local":
		return NewLocalBroker(), nil
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", cfg.Type)
	}
}
