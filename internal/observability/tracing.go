package observability

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with SharePoint-specific span creation methods.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// NewTracer creates a new Tracer using the given TracerProvider.
func NewTracer(tp trace.TracerProvider, serviceName string) *Tracer {
	return &Tracer{
		tracer:      tp.Tracer(TracerName),
		serviceName: serviceName,
	}
}

// StartSpan starts a new span with the given name and attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartOperation starts a client span for a logical list operation such as
// reading items or uploading a file. An empty list name is omitted.
func (t *Tracer) StartOperation(ctx context.Context, operation string, list string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{OperationAttr(operation)}
	if list != "" {
		attrs = append(attrs, ListAttr(list))
	}
	return t.tracer.Start(ctx, "sharepoint."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// StartRequest starts a span for a single outgoing HTTP request.
func (t *Tracer) StartRequest(ctx context.Context, r *http.Request) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "sharepoint.http", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.url", r.URL.Redacted()),
		attribute.String("server.address", r.URL.Hostname()),
	))
}

// SetHTTPStatus sets the HTTP status code on the current span.
func (t *Tracer) SetHTTPStatus(ctx context.Context, statusCode int) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	if statusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(statusCode))
	}
}

// StartDBQuery starts a span for a mirror store query.
func (t *Tracer) StartDBQuery(ctx context.Context, operation string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "db.query", trace.WithAttributes(
		attribute.String("db.operation", operation),
	))
}

// RecordError records an error on the span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddQuery adds the rendered query fragment to a span. Empty fragments are skipped.
func (t *Tracer) AddQuery(span trace.Span, query string) {
	if query != "" {
		span.SetAttributes(QueryAttr(query))
	}
}

// LoggerWithTrace returns a logger enriched with trace context.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}
	return logger.With(
		slog.String(LogFieldTraceID, span.SpanContext().TraceID().String()),
		slog.String(LogFieldSpanID, span.SpanContext().SpanID().String()),
	)
}
