package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-payouts/pkg/config"
	"github.com/zoff-tech/go-payouts/pkg/telemetry"
)

const exchangeKind = "topic"

type RabbitMQBrokerCreator func(ctx context.Context, settings *config.BrokerSettings) (MessageBroker, error)

var NewRabbitMqBroker RabbitMQBrokerCreator = func(ctx context.Context, settings *config.BrokerSettings) (MessageBroker, error) {
	if settings.PoolSize <= 0 {
		return nil, errors.New("poolSize must be greater than 0")
	}

	broker := &rabbitMqBroker{
		channelPool:     make(chan *pooledChannel, settings.PoolSize),
		settings:        settings,
		reconnectTicker: time.NewTicker(5 * time.Second),
		stopReconnect:   make(chan struct{}),
	}

	if err := broker.connectAndInitialize(); err != nil {
		return nil, err
	}

	go broker.recoverConnection()

	return broker, nil
}

type rabbitMqBroker struct {
	connection      *amqp.Connection
	channelPool     chan *pooledChannel
	mu              sync.Mutex
	settings        *config.BrokerSettings
	reconnectTicker *time.Ticker
	stopReconnect   chan struct{}
}

func (r *rabbitMqBroker) Publish(ctx context.Context, msg *Message) error {
	tracer := otel.Tracer(telemetry.TracerName)
	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("rabbitmq"),
			semconv.MessagingDestinationKindKey.String(exchangeKind),
			semconv.MessagingDestinationKey.String(r.settings.Exchange),
			semconv.MessagingRabbitmqRoutingKeyKey.String(msg.Topic),
		),
	)
	defer span.End()

	headers := make(map[string]string, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))

	amqpHeaders := make(amqp.Table, len(headers))
	for k, v := range headers {
		amqpHeaders[k] = v
	}

	pooledChan, err := r.getChannel()
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	defer r.releaseChannel(pooledChan)

	// ExchangeDeclare is idempotent and has no effect if the exchange is already in place
	if err := r.declareExchange(pooledChan.channel); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	err = pooledChan.channel.Publish(
		r.settings.Exchange, msg.Topic, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         msg.Payload,
			Headers:      amqpHeaders,
		},
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	span.SetAttributes(
		attribute.Int("messaging.message_payload_size_bytes", len(msg.Payload)),
	)

	return nil
}

// Subscribe consumes a durable queue named after topic, bound to the exchange
// with topic as routing key. It holds its own channel outside the pool and
// reopens it with backoff when the channel or the connection is lost.
func (r *rabbitMqBroker) Subscribe(ctx context.Context, topic string, h Handler) error {
	b := backoff.WithContext(newConsumerBackOff(), ctx)
	for {
		pc, deliveries, err := r.openConsumer(topic)
		if err == nil {
			b.Reset()
			log.Printf("Consuming %s from exchange %s", topic, r.settings.Exchange)
			err = consume(ctx, topic, pc, deliveries, h)
			pc.channel.Close()
			if err == nil {
				return nil
			}
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}
		log.Printf("Consumer for %s interrupted, reopening in %s: %v", topic, wait, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// consume hands deliveries to h until ctx is done or the channel dies.
func consume(ctx context.Context, topic string, pc *pooledChannel, deliveries <-chan amqp.Delivery, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-pc.notifyClose:
			return fmt.Errorf("consumer channel closed: %v", err)
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", topic)
			}
			deliver(ctx, topic, d, h)
		}
	}
}

// deliver runs h for d. A failed message is redelivered once, then dropped.
func deliver(ctx context.Context, topic string, d amqp.Delivery, h Handler) {
	msg := &Message{Topic: d.RoutingKey, Payload: d.Body, Headers: make(map[string]string, len(d.Headers))}
	for k, v := range d.Headers {
		msg.Headers[k] = fmt.Sprint(v)
	}
	if err := h(consumerContext(ctx, msg.Headers), msg); err != nil {
		requeue := !d.Redelivered
		log.Printf("Handler failed for message on %s (requeue=%t): %v", topic, requeue, err)
		if err := d.Nack(false, requeue); err != nil {
			log.Printf("Failed to nack message on %s: %v", topic, err)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Printf("Failed to ack message on %s: %v", topic, err)
	}
}

func (r *rabbitMqBroker) declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		r.settings.Exchange, // name
		exchangeKind,        // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}

func (r *rabbitMqBroker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	close(r.stopReconnect)
	r.reconnectTicker.Stop()

	close(r.channelPool)
	for pooledChan := range r.channelPool {
		pooledChan.channel.Close()
	}

	if r.connection != nil {
		return r.connection.Close()
	}
	return nil
}

// consumerContext restores the producer's trace context from message headers.
func consumerContext(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
