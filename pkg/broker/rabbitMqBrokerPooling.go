package broker

import (
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/streadway/amqp"

	"github.com/zoff-tech/go-payouts/pkg/config"
)

// pooledChannel is an AMQP channel plus the notification the server sends
// when it closes the channel.
type pooledChannel struct {
	channel     *amqp.Channel
	notifyClose chan *amqp.Error
}

func openChannel(conn *amqp.Connection) (*pooledChannel, error) {
	if conn == nil || conn.IsClosed() {
		return nil, amqp.ErrClosed
	}
	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return &pooledChannel{
		channel:     channel,
		notifyClose: channel.NotifyClose(make(chan *amqp.Error, 1)),
	}, nil
}

// closed reports whether the server closed the channel.
func (p *pooledChannel) closed() bool {
	select {
	case err := <-p.notifyClose:
		log.Printf("Discarding closed channel: %v", err)
		return true
	default:
		return false
	}
}

func newConnection(settings *config.BrokerSettings) (*amqp.Connection, error) {
	conn, err := amqp.Dial(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	notifyClose := make(chan *amqp.Error)
	conn.NotifyClose(notifyClose)
	go func() {
		for err := range notifyClose {
			log.Printf("RabbitMQ connection closed, consumers will reopen their channels: %v", err)
		}
	}()
	return conn, nil
}

func (r *rabbitMqBroker) connectAndInitialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connection != nil && !r.connection.IsClosed() {
		r.connection.Close()
	}

	connection, err := newConnection(r.settings)
	if err != nil {
		return err
	}
	r.connection = connection

	close(r.channelPool)
	r.channelPool = make(chan *pooledChannel, r.settings.PoolSize)

	setup, err := openChannel(connection)
	if err != nil {
		return err
	}
	defer setup.channel.Close()
	if err := r.declareExchange(setup.channel); err != nil {
		return err
	}

	for i := 0; i < r.settings.PoolSize; i++ {
		pc, err := openChannel(connection)
		if err != nil {
			return err
		}
		r.channelPool <- pc
	}

	log.Printf("RabbitMQ connection, exchange %s and %d publish channels initialized", r.settings.Exchange, r.settings.PoolSize)
	return nil
}

func (r *rabbitMqBroker) recoverConnection() {
	for {
		select {
		case <-r.reconnectTicker.C:
			if r.currentConnection() == nil || r.currentConnection().IsClosed() {
				log.Println("Attempting to reconnect to RabbitMQ...")
				if err := r.connectAndInitialize(); err != nil {
					log.Printf("Failed to reconnect to RabbitMQ: %v", err)
				} else {
					log.Println("Reconnected to RabbitMQ successfully")
				}
			}
		case <-r.stopReconnect:
			log.Println("Stopping RabbitMQ connection recovery")
			return
		}
	}
}

func (r *rabbitMqBroker) currentConnection() *amqp.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connection
}

// getChannel takes a healthy publish channel from the pool, opening a new
// one when the pool is empty.
func (r *rabbitMqBroker) getChannel() (*pooledChannel, error) {
	for {
		select {
		case pc := <-r.channelPool:
			if pc.closed() {
				continue
			}
			return pc, nil
		default:
			return openChannel(r.currentConnection())
		}
	}
}

func (r *rabbitMqBroker) releaseChannel(pc *pooledChannel) {
	if pc.closed() {
		return
	}
	select {
	case r.channelPool <- pc:
	default:
		pc.channel.Close()
	}
}

// openConsumer opens a channel outside the pool and starts consuming the
// durable queue for topic.
func (r *rabbitMqBroker) openConsumer(topic string) (*pooledChannel, <-chan amqp.Delivery, error) {
	pc, err := openChannel(r.currentConnection())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}
	deliveries, err := r.declareAndConsume(pc.channel, topic)
	if err != nil {
		pc.channel.Close()
		return nil, nil, err
	}
	return pc, deliveries, nil
}

func (r *rabbitMqBroker) declareAndConsume(channel *amqp.Channel, topic string) (<-chan amqp.Delivery, error) {
	if err := r.declareExchange(channel); err != nil {
		return nil, err
	}
	queue, err := channel.QueueDeclare(topic, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	if err := channel.QueueBind(queue.Name, topic, r.settings.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue %s: %w", topic, err)
	}
	if err := channel.Qos(1, 0, false); err != nil {
		return nil, err
	}
	deliveries, err := channel.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", topic, err)
	}
	return deliveries, nil
}

// newConsumerBackOff paces consumer channel reopening while the connection
// is being recovered.
func newConsumerBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0
	return eb
}
