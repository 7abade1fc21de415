package broker

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-payouts/pkg/telemetry"
)

// LocalBroker delivers messages in process, synchronously, to the handler
// subscribed to the topic. A handler error is returned from Publish.
type LocalBroker struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{handlers: make(map[string]Handler)}
}

func (l *LocalBroker) Publish(ctx context.Context, msg *Message) error {
	l.mu.RLock()
	h, ok := l.handlers[msg.Topic]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no subscriber for topic %s", msg.Topic)
	}

	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "Publish", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	headers := make(map[string]string, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))

	delivered := *msg
	delivered.Headers = headers
	if err := h(ctx, &delivered); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}

// Subscribe registers h for topic and blocks until ctx is cancelled.
func (l *LocalBroker) Subscribe(ctx context.Context, topic string, h Handler) error {
	l.mu.Lock()
	if _, ok := l.handlers[topic]; ok {
		l.mu.Unlock()
		return fmt.Errorf("topic %s already has a subscriber", topic)
	}
	l.handlers[topic] = h
	l.mu.Unlock()

	<-ctx.Done()

	l.mu.Lock()
	delete(l.handlers, topic)
	l.mu.Unlock()
	return nil
}

func (l *LocalBroker) Close() error {
	return nil
}
