package store

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const statsCollection = "stats"

func addDBStatsToSpan(span trace.Span, statement string, system string, duration time.Duration) {
	span.SetAttributes(
		attribute.String("db.system", system),
		attribute.String("db.statement", statement),
		attribute.Float64("db.execution_time_ms", float64(duration.Milliseconds())),
	)
}
