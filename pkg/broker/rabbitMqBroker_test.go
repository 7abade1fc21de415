package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAcknowledger struct {
	mock.Mock
}

func (m *mockAcknowledger) Ack(tag uint64, multiple bool) error {
	return m.Called(tag, multiple).Error(0)
}

func (m *mockAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	return m.Called(tag, multiple, requeue).Error(0)
}

func (m *mockAcknowledger) Reject(tag uint64, requeue bool) error {
	return m.Called(tag, requeue).Error(0)
}

func TestDeliver(t *testing.T) {
	tests := []struct {
		name        string
		redelivered bool
		handlerErr  error
		expect      func(a *mockAcknowledger)
	}{
		{
			name:   "success is acked",
			expect: func(a *mockAcknowledger) { a.On("Ack", uint64(7), false).Return(nil).Once() },
		},
		{
			name:       "first failure is requeued",
			handlerErr: errors.New("runner failed"),
			expect:     func(a *mockAcknowledger) { a.On("Nack", uint64(7), false, true).Return(nil).Once() },
		},
		{
			name:        "failed redelivery is dropped",
			redelivered: true,
			handlerErr:  errors.New("runner failed"),
			expect:      func(a *mockAcknowledger) { a.On("Nack", uint64(7), false, false).Return(nil).Once() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &mockAcknowledger{}
			tt.expect(ack)

			var got *Message
			d := amqp.Delivery{
				Acknowledger: ack,
				DeliveryTag:  7,
				RoutingKey:   "process_tracker.R",
				Redelivered:  tt.redelivered,
				Body:         []byte(`{"id":"t1"}`),
				Headers:      amqp.Table{"task_name": "N", "task_tags": "PAYOUTS,WISE"},
			}
			deliver(context.Background(), "process_tracker.R", d, func(ctx context.Context, msg *Message) error {
				got = msg
				return tt.handlerErr
			})

			require.NotNil(t, got)
			assert.Equal(t, "process_tracker.R", got.Topic)
			assert.Equal(t, "PAYOUTS,WISE", got.Headers["task_tags"])
			assert.JSONEq(t, `{"id":"t1"}`, string(got.Payload))
			ack.AssertExpectations(t)
		})
	}
}

func TestConsume_StopsWhenChannelCloses(t *testing.T) {
	pc := &pooledChannel{notifyClose: make(chan *amqp.Error, 1)}
	deliveries := make(chan amqp.Delivery)
	pc.notifyClose <- &amqp.Error{Code: amqp.ChannelError, Reason: "channel error"}

	err := consume(context.Background(), "process_tracker.R", pc, deliveries, func(context.Context, *Message) error { return nil })
	assert.ErrorContains(t, err, "consumer channel closed")
}

func TestConsume_StopsWhenDeliveriesEnd(t *testing.T) {
	pc := &pooledChannel{notifyClose: make(chan *amqp.Error, 1)}
	deliveries := make(chan amqp.Delivery, 1)

	ack := &mockAcknowledger{}
	ack.On("Ack", uint64(1), false).Return(nil).Once()
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, RoutingKey: "process_tracker.R"}
	close(deliveries)

	handled := 0
	err := consume(context.Background(), "process_tracker.R", pc, deliveries, func(context.Context, *Message) error {
		handled++
		return nil
	})
	assert.EqualError(t, err, "delivery channel for process_tracker.R closed")
	assert.Equal(t, 1, handled)
	ack.AssertExpectations(t)
}

func TestConsume_ReturnsOnCancel(t *testing.T) {
	pc := &pooledChannel{notifyClose: make(chan *amqp.Error, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, consume(ctx, "process_tracker.R", pc, make(chan amqp.Delivery), nil))
}

func TestPooledChannel_Closed(t *testing.T) {
	pc := &pooledChannel{notifyClose: make(chan *amqp.Error, 1)}
	assert.False(t, pc.closed())

	pc.notifyClose <- amqp.ErrClosed
	assert.True(t, pc.closed())
}

func TestGetChannel_SkipsClosedChannels(t *testing.T) {
	healthy := &pooledChannel{notifyClose: make(chan *amqp.Error, 1)}
	dead := &pooledChannel{notifyClose: make(chan *amqp.Error, 1)}
	dead.notifyClose <- amqp.ErrClosed

	r := &rabbitMqBroker{channelPool: make(chan *pooledChannel, 2)}
	r.channelPool <- dead
	r.channelPool <- healthy

	got, err := r.getChannel()
	require.NoError(t, err)
	assert.Same(t, healthy, got)

	// the pool is empty and there is no live connection
	_, err = r.getChannel()
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestNewConsumerBackOff(t *testing.T) {
	b := newConsumerBackOff()
	first := b.NextBackOff()
	assert.Greater(t, first, time.Duration(0))
	assert.LessOrEqual(t, first, 2*time.Second)
	for i := 0; i < 20; i++ {
		assert.LessOrEqual(t, b.NextBackOff(), 45*time.Second)
	}
}
