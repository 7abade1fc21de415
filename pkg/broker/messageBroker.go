package broker

import "context"

// Message is one published unit. Topic is the Pub/Sub topic or the RabbitMQ
// routing key on the configured exchange.
type Message struct {
	Topic       string
	OrderingKey string
	Payload     []byte
	Headers     map[string]string
}

// Handler processes a delivered message. A non-nil error negatively acknowledges it.
type Handler func(ctx context.Context, msg *Message) error

// MessageBroker defines the operations to publish messages to a broker.
type MessageBroker interface {
	// Publish sends the message to its topic with optional headers.
	Publish(ctx context.Context, msg *Message) error
	// Subscribe delivers messages of topic to h until ctx is cancelled.
	Subscribe(ctx context.Context, topic string, h Handler) error
	// Close cleans up any resources (connections).
	Close() error
}
