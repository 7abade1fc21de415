package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AddDBStats records the outcome of a storage call on span.
func AddDBStats(span trace.Span, system, statement string, rowsCount int, duration time.Duration) {
	span.SetAttributes(
		attribute.Int("rowsCount", rowsCount),
		attribute.String("db.system", system),
		attribute.String("db.statement", statement),
		attribute.Float64("db.execution_time_ms", float64(duration.Milliseconds())),
	)
}

// RecordError marks span as failed with err.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
