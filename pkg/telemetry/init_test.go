package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zoff-tech/go-payouts/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Observability
		wantErr bool
	}{
		{"valid", config.Observability{ServiceName: "payouts-worker", TracingURL: "http://localhost:4318"}, false},
		{"missing tracing url", config.Observability{ServiceName: "payouts-worker"}, true},
		{"missing service name", config.Observability{TracingURL: "http://localhost:4318"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Init(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, shutdown)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, shutdown)
			defer shutdown()

			assert.NotNil(t, otel.GetTracerProvider())
		})
	}
}

func TestInit_InstallsPropagator(t *testing.T) {
	shutdown, err := Init(config.Observability{ServiceName: "payouts-worker", TracingURL: "http://localhost:4318"})
	assert.NoError(t, err)
	defer shutdown()

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.NotEmpty(t, carrier.Get("traceparent"))
}
