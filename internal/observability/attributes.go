// Package observability provides OpenTelemetry-based instrumentation for the SharePoint client.
//
// It supports distributed tracing, metrics collection, and enhanced structured logging.
//
// All observability features are opt-in. When not configured, no-op implementations
// are used with zero performance overhead.
package observability

import "go.opentelemetry.io/otel/attribute"

// Instrumentation identity constants
const (
	// TracerName is the instrumentation name for tracing.
	TracerName = "github.com/nlstn/go-sprest"
	// MeterName is the instrumentation name for metrics.
	MeterName = "github.com/nlstn/go-sprest"
)

// SharePoint semantic attribute keys following OpenTelemetry conventions.
const (
	// Resource attributes
	AttrList      = "sharepoint.list"
	AttrItemID    = "sharepoint.item_id"
	AttrOperation = "sharepoint.operation"
	AttrTarget    = "sharepoint.target"

	// Query option attributes
	AttrQuery = "sharepoint.query"

	// Result attributes
	AttrResultCount = "sharepoint.result.count"
	AttrHasNextLink = "sharepoint.has_next_link"
	AttrBytesSent   = "sharepoint.upload.bytes"

	// Request attributes
	AttrRequestID = "sharepoint.request_id"

	// Error attributes
	AttrErrorCode = "sharepoint.error.code"

	// Store attributes
	AttrStoreTable = "db.sql.table"
)

// Operation types for the sharepoint.operation attribute.
const (
	OpGet         = "get"
	OpCreate      = "create"
	OpCreateFile  = "create_binary"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpContextInfo = "context_info"
	OpUpload      = "upload"
)

// Log field keys for structured logging with trace context.
const (
	LogFieldList      = "sharepoint.list"
	LogFieldOperation = "sharepoint.operation"
	LogFieldTraceID   = "trace_id"
	LogFieldSpanID    = "span_id"
	LogFieldRequestID = "request_id"
	LogFieldDuration  = "duration_ms"
	LogFieldStatus    = "status"
	LogFieldError     = "error"
)

// ListAttr creates an attribute for the list title.
func ListAttr(name string) attribute.KeyValue {
	return attribute.String(AttrList, name)
}

// ItemIDAttr creates an attribute for a list item id.
func ItemIDAttr(id int) attribute.KeyValue {
	return attribute.Int(AttrItemID, id)
}

// OperationAttr creates an attribute for the operation type.
func OperationAttr(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// TargetAttr creates an attribute for the URL target (site or tenant).
func TargetAttr(target string) attribute.KeyValue {
	return attribute.String(AttrTarget, target)
}

// QueryAttr creates an attribute for the rendered OData query fragment.
func QueryAttr(query string) attribute.KeyValue {
	return attribute.String(AttrQuery, query)
}

// ResultCountAttr creates an attribute for the result count.
func ResultCountAttr(count int64) attribute.KeyValue {
	return attribute.Int64(AttrResultCount, count)
}

// RequestIDAttr creates an attribute for the client-request-id header value.
func RequestIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// ErrorCodeAttr creates an attribute for the SharePoint error code.
func ErrorCodeAttr(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}
