package sprest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Config describes the SharePoint site a Client talks to. It replaces the
// page context a browser-hosted script would read its site URLs, user and
// request digest from.
type Config struct {
	// SiteURL is the absolute URL of the web, e.g. https://contoso.sharepoint.com/sites/hr.
	SiteURL string

	// ServerRelativeURL is the server-relative path of the web. When empty it
	// is derived from the path of SiteURL.
	ServerRelativeURL string

	// HTTPClient performs requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Authorizer decorates every request with credentials. Optional.
	Authorizer Authorizer

	// RequestDigest is a fixed X-RequestDigest value. When empty the client
	// fetches digests from /_api/contextinfo and refreshes them on expiry.
	RequestDigest string

	// UserAgent is sent on every request. SharePoint Online throttles
	// undecorated traffic more aggressively.
	UserAgent string

	// Lists maps logical names to list titles, e.g. {"leave": "LeaveRequests"}.
	Lists map[string]string

	// Groups maps logical names to site group names, e.g. {"hr": "Hr"}.
	Groups map[string]string

	// Observability configures tracing and metrics. Optional.
	Observability *ObservabilityConfig
}

// ObservabilityConfig configures OpenTelemetry instrumentation of the client.
type ObservabilityConfig struct {
	// TracerProvider is used for spans. If nil, tracing is disabled.
	TracerProvider trace.TracerProvider

	// MeterProvider is used for metrics. If nil, metrics are disabled.
	MeterProvider metric.MeterProvider

	// ServiceName identifies the calling application.
	ServiceName string

	// ServiceVersion is the version of the calling application.
	ServiceVersion string

	// EnableQueryTracing records rendered query fragments on spans.
	EnableQueryTracing bool
}

// Authorizer adds credentials to an outgoing request.
type Authorizer interface {
	Authorize(ctx context.Context, r *http.Request) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, r *http.Request) error

// Authorize calls f(ctx, r).
func (f AuthorizerFunc) Authorize(ctx context.Context, r *http.Request) error {
	return f(ctx, r)
}

// BearerToken authorizes requests with an OAuth access token.
type BearerToken string

// Authorize sets the Authorization header.
func (t BearerToken) Authorize(_ context.Context, r *http.Request) error {
	if t == "" {
		return errors.New("sprest: empty bearer token")
	}
	r.Header.Set("Authorization", "Bearer "+string(t))
	return nil
}

// CookieAuth authorizes requests with SharePoint Online session cookies.
type CookieAuth struct {
	FedAuth string
	RtFa    string
}

// Authorize attaches the FedAuth and rtFa cookies.
func (a CookieAuth) Authorize(_ context.Context, r *http.Request) error {
	if a.FedAuth == "" {
		return errors.New("sprest: FedAuth cookie is required")
	}
	r.AddCookie(&http.Cookie{Name: "FedAuth", Value: a.FedAuth})
	if a.RtFa != "" {
		r.AddCookie(&http.Cookie{Name: "rtFa", Value: a.RtFa})
	}
	return nil
}

// siteURLs holds the URLs derived from Config.
type siteURLs struct {
	site         string // absolute web URL without trailing slash
	serverRel    string // "/sites/hr", or "" for the root web
	tenant       string // scheme://host
	host         string
	serverRelRaw string // serverRel, or "/" for the root web
}

func (c Config) urls() (siteURLs, error) {
	if c.SiteURL == "" {
		return siteURLs{}, errors.New("sprest: SiteURL is required")
	}
	u, err := url.Parse(c.SiteURL)
	if err != nil {
		return siteURLs{}, fmt.Errorf("sprest: invalid SiteURL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return siteURLs{}, fmt.Errorf("sprest: SiteURL must be an absolute http(s) URL, got %q", c.SiteURL)
	}

	rel := c.ServerRelativeURL
	if rel == "" {
		rel = u.EscapedPath()
	}
	rel = strings.TrimRight(rel, "/")
	if rel != "" && !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	display := rel
	if display == "" {
		display = "/"
	}

	tenant := u.Scheme + "://" + u.Host
	return siteURLs{
		site:         tenant + rel,
		serverRel:    rel,
		tenant:       tenant,
		host:         u.Host,
		serverRelRaw: display,
	}, nil
}
