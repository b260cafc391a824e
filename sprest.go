// Package sprest provides a client for SharePoint's OData REST API.
// It covers list and list item CRUD, document library uploads, site group
// and user lookups, and composes OData query fragments ($select, $expand,
// $filter) for those calls.
package sprest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nlstn/go-sprest/internal/digest"
	"github.com/nlstn/go-sprest/internal/observability"
)

// Client performs SharePoint REST calls against a single web.
//
// Thread safety: a Client is safe for concurrent use once constructed.
type Client struct {
	// urls holds the site, tenant and server-relative URLs
	urls siteURLs
	// httpClient performs the requests
	httpClient *http.Client
	// auth decorates requests with credentials, may be nil
	auth Authorizer
	// digest caches the X-RequestDigest value for write requests
	digest *digest.Cache
	// staticDigest overrides digest when configured
	staticDigest string
	// userAgent is sent on every request when non-empty
	userAgent string
	// lists and groups resolve logical names to titles
	lists  map[string]string
	groups map[string]string
	// logger is used for structured logging throughout the client
	logger *slog.Logger
	// observability holds tracer and metrics
	observability *observability.Config
	// now is the clock used for upload file name prefixes
	now func() time.Time
	// newRequestID generates client-request-id values
	newRequestID func() string
	// serverTime is the UnixNano of the last response Date header
	serverTime atomic.Int64
}

// Option configures a Client beyond what Config covers.
type Option func(*Client)

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used to prefix uploaded file names.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRequestIDGenerator overrides the generator of client-request-id values.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.newRequestID = gen
		}
	}
}

// NewClient creates a client for the web described by cfg.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	urls, err := cfg.urls()
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		urls:         urls,
		httpClient:   httpClient,
		auth:         cfg.Authorizer,
		staticDigest: cfg.RequestDigest,
		userAgent:    cfg.UserAgent,
		lists:        copyDirectory(cfg.Lists),
		groups:       copyDirectory(cfg.Groups),
		logger:       slog.Default(),
		now:          time.Now,
		newRequestID: func() string { return uuid.NewString() },
	}

	obsCfg, err := buildObservability(cfg.Observability)
	if err != nil {
		return nil, err
	}
	c.observability = obsCfg

	for _, opt := range opts {
		opt(c)
	}

	c.digest = digest.New(c.fetchContextInfo)
	return c, nil
}

func buildObservability(cfg *ObservabilityConfig) (*observability.Config, error) {
	var opts []observability.Option
	if cfg != nil {
		if cfg.TracerProvider != nil {
			opts = append(opts, observability.WithTracerProvider(cfg.TracerProvider))
		}
		if cfg.MeterProvider != nil {
			opts = append(opts, observability.WithMeterProvider(cfg.MeterProvider))
		}
		if cfg.ServiceName != "" {
			opts = append(opts, observability.WithServiceName(cfg.ServiceName))
		}
		if cfg.ServiceVersion != "" {
			opts = append(opts, observability.WithServiceVersion(cfg.ServiceVersion))
		}
		if cfg.EnableQueryTracing {
			opts = append(opts, observability.WithQueryTracing())
		}
	}
	obsCfg := observability.NewConfig(opts...)
	if err := obsCfg.Initialize(); err != nil {
		return nil, fmt.Errorf("sprest: failed to initialize observability: %w", err)
	}
	return obsCfg, nil
}

func copyDirectory(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SetLogger sets a custom logger for the client.
// If not called, slog.Default() is used.
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger
}

// SiteURL returns the absolute URL of the web.
func (c *Client) SiteURL() string {
	return c.urls.site
}

// TenantURL returns the scheme and host of the web, used for TenantTarget requests.
func (c *Client) TenantURL() string {
	return c.urls.tenant
}

// ServerRelativeURL returns the server-relative path of the web ("/" for the root web).
func (c *Client) ServerRelativeURL() string {
	return c.urls.serverRelRaw
}

// List resolves a logical list name through Config.Lists. Unknown names are
// returned unchanged so titles can be passed directly.
func (c *Client) List(name string) string {
	if title, ok := c.lists[name]; ok {
		return title
	}
	return name
}

// Group resolves a logical group name through Config.Groups. Unknown names
// are returned unchanged.
func (c *Client) Group(name string) string {
	if title, ok := c.groups[name]; ok {
		return title
	}
	return name
}

// ServerTime returns the server clock as reported by the Date header of the
// most recent response. It is the zero time until the first response
// arrives and does not advance between requests.
func (c *Client) ServerTime() time.Time {
	ns := c.serverTime.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func (c *Client) observeServerTime(h http.Header) {
	date := h.Get("Date")
	if date == "" {
		return
	}
	t, err := http.ParseTime(date)
	if err != nil {
		c.logger.Debug("Ignoring unparseable Date header", "date", date, "error", err)
		return
	}
	c.serverTime.Store(t.UnixNano())
}

// contextInfo is the payload of POST /_api/contextinfo.
type contextInfo struct {
	FormDigestValue          string `json:"FormDigestValue"`
	FormDigestTimeoutSeconds int    `json:"FormDigestTimeoutSeconds"`
	WebFullURL               string `json:"WebFullUrl"`
	LibraryVersion           string `json:"LibraryVersion"`
}

// ContextInfo returns the web's context information, including a fresh
// form digest.
func (c *Client) ContextInfo(ctx context.Context) (*ContextInfo, error) {
	var info contextInfo
	resp, err := c.do(ctx, request{
		operation: observability.OpContextInfo,
		method:    http.MethodPost,
		endpoint:  "/_api/contextinfo",
		noDigest:  true,
	})
	if err != nil {
		return nil, err
	}
	if err := resp.scalar("GetContextWebInformation", &info); err != nil {
		return nil, err
	}
	return &ContextInfo{
		FormDigestValue: info.FormDigestValue,
		FormDigestTTL:   time.Duration(info.FormDigestTimeoutSeconds) * time.Second,
		WebFullURL:      info.WebFullURL,
		LibraryVersion:  info.LibraryVersion,
	}, nil
}

// ContextInfo describes the web and carries a form digest.
type ContextInfo struct {
	FormDigestValue string
	FormDigestTTL   time.Duration
	WebFullURL      string
	LibraryVersion  string
}

func (c *Client) fetchContextInfo(ctx context.Context) (string, time.Duration, error) {
	info, err := c.ContextInfo(ctx)
	if err != nil {
		return "", 0, err
	}
	return info.FormDigestValue, info.FormDigestTTL, nil
}

func (c *Client) requestDigest(ctx context.Context) (string, error) {
	if c.staticDigest != "" {
		return c.staticDigest, nil
	}
	return c.digest.Get(ctx)
}
