package broker

import (
	"context"
	"log"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-payouts/pkg/config"
	"github.com/zoff-tech/go-payouts/pkg/telemetry"
)

// PubSubBrokerCreator defines a function type for creating Pub/Sub clients.
type PubSubBrokerCreator func(ctx context.Context, settings *config.BrokerSettings, opts ...option.ClientOption) (MessageBroker, error)

// NewPubSubClient is the default implementation of PubSubBrokerCreator.
var NewPubSubClient PubSubBrokerCreator = func(ctx context.Context, settings *config.BrokerSettings, opts ...option.ClientOption) (MessageBroker, error) {
	client, err := pubsub.NewClient(ctx, settings.ProjectID, opts...)
	if err != nil {
		return nil, err
	}
	return &pubSubBroker{client: client}, nil
}

type pubSubBroker struct {
	client *pubsub.Client
}

func (p *pubSubBroker) Publish(ctx context.Context, msg *Message) error {
	tracer := otel.Tracer(telemetry.TracerName)
	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("pubsub"),
			semconv.MessagingDestinationKindKey.String("topic"),
			semconv.MessagingDestinationKey.String(msg.Topic),
		),
	)
	defer span.End()

	attributes := make(map[string]string, len(msg.Headers))
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(attributes))
	for key, value := range msg.Headers {
		attributes[key] = value
	}

	topic := p.client.Topic(msg.Topic)
	if msg.OrderingKey != "" {
		topic.EnableMessageOrdering = true
	}

	res := topic.Publish(ctx, &pubsub.Message{
		Data:        msg.Payload,
		Attributes:  attributes,
		OrderingKey: msg.OrderingKey,
	})
	if _, err := res.Get(ctx); err != nil { // wait for server ack
		telemetry.RecordError(span, err)
		return err
	}

	span.SetAttributes(
		attribute.Int("messaging.message_payload_size_bytes", len(msg.Payload)),
	)

	return nil
}

// Subscribe receives from the subscription named after topic.
func (p *pubSubBroker) Subscribe(ctx context.Context, topic string, h Handler) error {
	log.Printf("Receiving %s from Pub/Sub", topic)
	return p.client.Subscription(topic).Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		msg := &Message{Topic: topic, OrderingKey: m.OrderingKey, Payload: m.Data, Headers: m.Attributes}
		if err := h(consumerContext(ctx, m.Attributes), msg); err != nil {
			log.Printf("Handler failed for message %s on %s: %v", m.ID, topic, err)
			m.Nack()
			return
		}
		m.Ack()
	})
}

func (p *pubSubBroker) Close() error {
	return p.client.Close()
}
