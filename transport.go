package sprest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nlstn/go-sprest/internal/etag"
	"github.com/nlstn/go-sprest/internal/observability"
	"github.com/nlstn/go-sprest/internal/verbose"
)

const (
	verboseJSON = "application/json;odata=verbose"
	octetStream = "application/octet-stream"
)

// Target selects the base URL a request endpoint is appended to.
type Target int

const (
	// SiteTarget resolves endpoints against the web URL.
	SiteTarget Target = iota
	// TenantTarget resolves endpoints against the scheme and host only.
	TenantTarget
)

// String returns the target name.
func (t Target) String() string {
	if t == TenantTarget {
		return "tenant"
	}
	return "site"
}

// RequestOption adjusts a single request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	target Target
	etag   string
	header http.Header
}

// OnTenant resolves the endpoint against the tenant root instead of the web.
func OnTenant() RequestOption {
	return func(rc *requestConfig) {
		rc.target = TenantTarget
	}
}

// WithETag sends etag as If-Match on updates and deletes instead of "*",
// so the write fails with ErrPreconditionFailed if the entry changed.
// Bare versions such as "3" are quoted.
func WithETag(tag string) RequestOption {
	return func(rc *requestConfig) {
		rc.etag = tag
	}
}

// WithHeader adds a header to the request.
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		if rc.header == nil {
			rc.header = make(http.Header)
		}
		rc.header.Add(key, value)
	}
}

func applyRequestOptions(opts []RequestOption) requestConfig {
	var rc requestConfig
	for _, opt := range opts {
		opt(&rc)
	}
	return rc
}

func (rc requestConfig) ifMatch() string {
	return etag.IfMatch(rc.etag)
}

// request is a single REST call.
type request struct {
	operation   string
	method      string
	endpoint    string // path and query relative to the target, or an absolute URL
	body        io.Reader
	size        int64 // known body length for streamed bodies, 0 if unknown
	contentType string
	xHTTPMethod string
	ifMatch     string
	list        string
	noDigest    bool
	cfg         requestConfig
}

// Response is a successful REST response.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Header holds the response headers.
	Header http.Header
	// Body is the raw response body.
	Body []byte
	// RequestID is the client-request-id sent with the request.
	RequestID string
}

// Data returns the value inside the verbose "d" envelope.
func (r *Response) Data() (json.RawMessage, error) {
	d, err := verbose.Unwrap(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return d, nil
}

// Decode unmarshals the value inside the "d" envelope into v.
func (r *Response) Decode(v any) error {
	d, err := r.Data()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(d, v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

// Item decodes a single-entry response.
func (r *Response) Item() (Item, error) {
	d, err := r.Data()
	if err != nil {
		return nil, err
	}
	return decodeItem(d)
}

// Items decodes a collection response and returns its entries and the
// __next continuation link, if any.
func (r *Response) Items() ([]Item, string, error) {
	d, err := r.Data()
	if err != nil {
		return nil, "", err
	}
	coll, err := verbose.DecodeCollection(d)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	items, err := decodeItems(coll.Results)
	if err != nil {
		return nil, "", err
	}
	return items, coll.Next, nil
}

func (r *Response) scalar(name string, v any) error {
	d, err := r.Data()
	if err != nil {
		return err
	}
	if err := verbose.Scalar(d, name, v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

// GetResource performs a GET request. endpoint is a path such as
// "/_api/web/lists" with an optional query fragment.
func (c *Client) GetResource(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, request{
		operation: observability.OpGet,
		method:    http.MethodGet,
		endpoint:  endpoint,
		cfg:       applyRequestOptions(opts),
	})
}

// CreateResource POSTs payload as verbose JSON.
func (c *Client) CreateResource(ctx context.Context, endpoint string, payload any, opts ...RequestOption) (*Response, error) {
	body, err := jsonBody(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, request{
		operation:   observability.OpCreate,
		method:      http.MethodPost,
		endpoint:    endpoint,
		body:        body,
		contentType: verboseJSON,
		cfg:         applyRequestOptions(opts),
	})
}

// CreateBinaryResource POSTs raw content, e.g. a file stream.
func (c *Client) CreateBinaryResource(ctx context.Context, endpoint string, content io.Reader, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, request{
		operation:   observability.OpCreateFile,
		method:      http.MethodPost,
		endpoint:    endpoint,
		body:        content,
		contentType: octetStream,
		cfg:         applyRequestOptions(opts),
	})
}

// UpdateResource PATCHes an entry with payload. If-Match is "*" unless
// WithETag is given.
func (c *Client) UpdateResource(ctx context.Context, endpoint string, payload any, opts ...RequestOption) (*Response, error) {
	body, err := jsonBody(payload)
	if err != nil {
		return nil, err
	}
	rc := applyRequestOptions(opts)
	return c.do(ctx, request{
		operation:   observability.OpUpdate,
		method:      http.MethodPatch,
		endpoint:    endpoint,
		body:        body,
		contentType: verboseJSON,
		xHTTPMethod: http.MethodPatch,
		ifMatch:     rc.ifMatch(),
		cfg:         rc,
	})
}

// DeleteResource deletes an entry. If-Match is "*" unless WithETag is given.
func (c *Client) DeleteResource(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	rc := applyRequestOptions(opts)
	return c.do(ctx, request{
		operation:   observability.OpDelete,
		method:      http.MethodDelete,
		endpoint:    endpoint,
		xHTTPMethod: http.MethodDelete,
		ifMatch:     rc.ifMatch(),
		cfg:         rc,
	})
}

func jsonBody(payload any) (io.Reader, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("sprest: encode payload: %w", err)
	}
	return bytes.NewReader(data), nil
}

func (c *Client) do(ctx context.Context, req request) (*Response, error) {
	tracer := c.observability.Tracer()
	metrics := c.observability.Metrics()

	ctx, span := tracer.StartOperation(ctx, req.operation, req.list)
	defer span.End()
	span.SetAttributes(observability.TargetAttr(req.cfg.target.String()))

	fullURL, err := c.resolve(req.endpoint, req.cfg.target)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if c.observability.QueryTracingEnabled() {
		if _, query, ok := strings.Cut(fullURL, "?"); ok {
			tracer.AddQuery(span, query)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, fullURL, req.body)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, &RequestError{Method: req.method, URL: fullURL, Err: err}
	}

	if req.size > 0 && httpReq.ContentLength == 0 {
		httpReq.ContentLength = req.size
	}

	requestID := c.newRequestID()
	span.SetAttributes(observability.RequestIDAttr(requestID))
	httpReq.Header.Set("Accept", verboseJSON)
	httpReq.Header.Set("client-request-id", requestID)
	if req.contentType != "" && req.body != nil {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.xHTTPMethod != "" {
		httpReq.Header.Set("X-Http-Method", req.xHTTPMethod)
	}
	if req.ifMatch != "" {
		httpReq.Header.Set("If-Match", req.ifMatch)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	for key, values := range req.cfg.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	usedDigest := false
	if req.method != http.MethodGet && !req.noDigest {
		value, err := c.requestDigest(ctx)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, fmt.Errorf("sprest: obtain request digest: %w", err)
		}
		httpReq.Header.Set("X-RequestDigest", value)
		usedDigest = true
	}

	if c.auth != nil {
		if err := c.auth.Authorize(ctx, httpReq); err != nil {
			tracer.RecordError(span, err)
			return nil, &RequestError{Method: req.method, URL: fullURL, Err: err}
		}
	}

	logger := observability.LoggerWithTrace(ctx, c.logger)
	ctx, httpSpan := tracer.StartRequest(ctx, httpReq)
	defer httpSpan.End()

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		duration := time.Since(start)
		metrics.RecordError(ctx, req.operation, "transport")
		tracer.RecordError(httpSpan, err)
		tracer.RecordError(span, err)
		logger.Warn("SharePoint request failed",
			"method", req.method,
			"url", fullURL,
			observability.LogFieldRequestID, requestID,
			observability.LogFieldDuration, duration.Milliseconds(),
			observability.LogFieldError, err)
		return nil, &RequestError{Method: req.method, URL: fullURL, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debug("Failed to close response body", observability.LogFieldError, cerr)
		}
	}()

	body, readErr := io.ReadAll(resp.Body)
	duration := time.Since(start)
	c.observeServerTime(resp.Header)
	tracer.SetHTTPStatus(ctx, resp.StatusCode)
	metrics.RecordRequest(ctx, req.operation, req.method, resp.StatusCode, duration)

	if readErr != nil {
		metrics.RecordError(ctx, req.operation, "read_body")
		tracer.RecordError(span, readErr)
		return nil, &RequestError{StatusCode: resp.StatusCode, Method: req.method, URL: fullURL, Err: readErr}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		reqErr := newRequestError(req.method, fullURL, resp.StatusCode, body)
		metrics.RecordError(ctx, req.operation, errorType(resp.StatusCode))
		span.SetAttributes(observability.ErrorCodeAttr(reqErr.Code))
		tracer.RecordError(span, reqErr)
		if resp.StatusCode == http.StatusForbidden && usedDigest && c.staticDigest == "" {
			// an expired or revoked digest also yields 403
			c.digest.Invalidate()
		}
		logger.Debug("SharePoint request rejected",
			"method", req.method,
			"url", fullURL,
			observability.LogFieldStatus, resp.StatusCode,
			observability.LogFieldRequestID, requestID,
			observability.LogFieldDuration, duration.Milliseconds(),
			"code", reqErr.Code,
			"message", reqErr.Message)
		return nil, reqErr
	}

	logger.Debug("SharePoint request completed",
		"method", req.method,
		"url", fullURL,
		observability.LogFieldStatus, resp.StatusCode,
		observability.LogFieldRequestID, requestID,
		observability.LogFieldDuration, duration.Milliseconds())

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		RequestID:  requestID,
	}, nil
}

func errorType(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "auth"
	case http.StatusPreconditionFailed:
		return "precondition_failed"
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return "throttled"
	}
	if status >= 500 {
		return "server"
	}
	return "client"
}

// resolve turns an endpoint into an absolute URL. Absolute endpoints (such as
// __next links) must point at the client's host and are used verbatim.
func (c *Client) resolve(endpoint string, target Target) (string, error) {
	lower := strings.ToLower(endpoint)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", fmt.Errorf("sprest: invalid link %q: %w", endpoint, err)
		}
		if !strings.EqualFold(u.Host, c.urls.host) {
			return "", fmt.Errorf("%w: link %q points outside %s", ErrUnexpectedResponse, endpoint, c.urls.host)
		}
		return endpoint, nil
	}

	base := c.urls.site
	if target == TenantTarget {
		base = c.urls.tenant
	}

	path, query, _ := strings.Cut(endpoint, "?")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	full := base + path
	if query != "" {
		full += "?" + encodeQuery(query)
	}
	return full, nil
}

// encodeQuery percent-encodes a raw query fragment so that builder output
// such as "$filter=(Status eq 'Open')" can be sent on the wire. The OData
// punctuation that SharePoint accepts unescaped is kept, and existing
// percent-escapes are left intact.
func encodeQuery(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + 16)
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case ch == '%' && i+2 < len(raw) && isHex(raw[i+1]) && isHex(raw[i+2]):
			b.WriteByte(ch)
		case isQuerySafe(ch):
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, "%%%02X", ch)
		}
	}
	return b.String()
}

func isQuerySafe(ch byte) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
		return true
	}
	switch ch {
	case '-', '.', '_', '~', '$', ',', '(', ')', '\'', '/', ':', '*', '!', '@', ';', '=', '&':
		return true
	}
	return false
}

func isHex(ch byte) bool {
	return ('0' <= ch && ch <= '9') || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}

// literal renders s as a quoted OData string literal for use inside a path
// segment such as GetByTitle('...'). Slashes are kept so server-relative
// folder URLs stay readable.
func literal(s string) string {
	escaped := url.PathEscape(strings.ReplaceAll(s, "'", "''"))
	return "'" + strings.ReplaceAll(escaped, "%2F", "/") + "'"
}

// withQuery appends a non-empty query fragment to path.
func withQuery(path, query string) string {
	query = strings.TrimPrefix(query, "?")
	if query == "" {
		return path
	}
	return path + "?" + query
}
