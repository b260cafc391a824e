package observability

import (
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// NewNoopTracer creates a tracer that does nothing.
func NewNoopTracer() *Tracer {
	return &Tracer{
		tracer:      tracenoop.NewTracerProvider().Tracer(""),
		serviceName: "",
	}
}

// NewNoopMetrics creates metrics that do nothing.
func NewNoopMetrics() *Metrics {
	meter := noop.NewMeterProvider().Meter("")
	m := &Metrics{}

	// Note: noop meter never returns errors, but we must check them to satisfy the linter.
	m.requestDuration, _ = meter.Float64Histogram("sharepoint.request.duration") //nolint:errcheck
	m.requestCount, _ = meter.Int64Counter("sharepoint.request.count")           //nolint:errcheck
	m.resultCount, _ = meter.Int64Histogram("sharepoint.result.count")           //nolint:errcheck
	m.uploadBytes, _ = meter.Int64Counter("sharepoint.upload.bytes")             //nolint:errcheck
	m.dbQueryDuration, _ = meter.Float64Histogram("sharepoint.db.query.duration") //nolint:errcheck
	m.errorCount, _ = meter.Int64Counter("sharepoint.error.count")               //nolint:errcheck

	return m
}
