package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the SharePoint client metric instruments.
type Metrics struct {
	requestDuration metric.Float64Histogram
	requestCount    metric.Int64Counter
	resultCount     metric.Int64Histogram
	uploadBytes     metric.Int64Counter
	dbQueryDuration metric.Float64Histogram
	errorCount      metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	// Note: errors from meter instrument creation are unlikely in practice
	// and would only occur with invalid parameters. We fall back to an
	// instrument without options so that recording never panics.
	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"sharepoint.request.duration",
		metric.WithDescription("Duration of SharePoint REST requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.requestDuration, _ = meter.Float64Histogram("sharepoint.request.duration")
	}

	m.requestCount, err = meter.Int64Counter(
		"sharepoint.request.count",
		metric.WithDescription("Total number of SharePoint REST requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.requestCount, _ = meter.Int64Counter("sharepoint.request.count")
	}

	m.resultCount, err = meter.Int64Histogram(
		"sharepoint.result.count",
		metric.WithDescription("Number of entries returned by collection requests"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		m.resultCount, _ = meter.Int64Histogram("sharepoint.result.count")
	}

	m.uploadBytes, err = meter.Int64Counter(
		"sharepoint.upload.bytes",
		metric.WithDescription("Bytes uploaded to document libraries"),
		metric.WithUnit("By"),
	)
	if err != nil {
		m.uploadBytes, _ = meter.Int64Counter("sharepoint.upload.bytes")
	}

	m.dbQueryDuration, err = meter.Float64Histogram(
		"sharepoint.db.query.duration",
		metric.WithDescription("Duration of mirror store queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.dbQueryDuration, _ = meter.Float64Histogram("sharepoint.db.query.duration")
	}

	m.errorCount, err = meter.Int64Counter(
		"sharepoint.error.count",
		metric.WithDescription("Total number of failed SharePoint REST requests"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.errorCount, _ = meter.Int64Counter("sharepoint.error.count")
	}

	return m
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(ctx context.Context, operation, method string, statusCode int, duration time.Duration) {
	attrs := metric.WithAttributes(
		OperationAttr(operation),
		attribute.String("http.method", method),
		attribute.Int("http.status_code", statusCode),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCount.Add(ctx, 1, attrs)
}

// RecordResultCount records the number of entries returned by a collection request.
func (m *Metrics) RecordResultCount(ctx context.Context, list string, count int64) {
	attrs := metric.WithAttributes(ListAttr(list))
	m.resultCount.Record(ctx, count, attrs)
}

// RecordUpload records the number of bytes streamed into a library.
func (m *Metrics) RecordUpload(ctx context.Context, list string, bytes int64) {
	m.uploadBytes.Add(ctx, bytes, metric.WithAttributes(ListAttr(list)))
}

// RecordDBQuery records metrics for a mirror store query.
func (m *Metrics) RecordDBQuery(ctx context.Context, operation string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("db.operation", operation))
	m.dbQueryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordError records a failed request.
func (m *Metrics) RecordError(ctx context.Context, operation, errorType string) {
	attrs := metric.WithAttributes(
		OperationAttr(operation),
		attribute.String("error.type", errorType),
	)
	m.errorCount.Add(ctx, 1, attrs)
}
