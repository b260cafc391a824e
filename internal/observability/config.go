package observability

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Config describes how REST calls and mirror statements are instrumented.
// A nil provider leaves that signal on its no-op implementation.
type Config struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	// ServiceName becomes the tracer's instrumentation name.
	ServiceName    string
	ServiceVersion string

	// EnableDetailedDBTracing opens a span per mirror store statement.
	// Statement durations are recorded whenever MeterProvider is set.
	EnableDetailedDBTracing bool

	// EnableQueryTracing adds the rendered query fragment as a span attribute.
	// Filters may contain user data, so this is off by default.
	EnableQueryTracing bool

	tracer  *Tracer
	metrics *Metrics
}

// Option configures a Config.
type Option func(*Config)

// WithTracerProvider enables spans for REST operations.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.TracerProvider = tp
	}
}

// WithMeterProvider enables request, result, upload and statement metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) {
		c.MeterProvider = mp
	}
}

func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

func WithServiceVersion(version string) Option {
	return func(c *Config) {
		c.ServiceVersion = version
	}
}

// WithDetailedDBTracing adds a span per mirror store statement.
func WithDetailedDBTracing() Option {
	return func(c *Config) {
		c.EnableDetailedDBTracing = true
	}
}

// WithQueryTracing records the query fragment on REST spans.
func WithQueryTracing() Option {
	return func(c *Config) {
		c.EnableQueryTracing = true
	}
}

// NewConfig applies opts over the "sprest-client" service name.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{ServiceName: "sprest-client"}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Initialize builds the tracer and instruments. Call it once, after the
// last option.
func (c *Config) Initialize() error {
	if c.TracerProvider != nil {
		c.tracer = NewTracer(c.TracerProvider, c.ServiceName)
	} else {
		c.tracer = NewNoopTracer()
	}

	if c.MeterProvider != nil {
		c.metrics = NewMetrics(c.MeterProvider)
	} else {
		c.metrics = NewNoopMetrics()
	}
	return nil
}

// Tracer is safe on a nil or uninitialized Config.
func (c *Config) Tracer() *Tracer {
	if c == nil || c.tracer == nil {
		return NewNoopTracer()
	}
	return c.tracer
}

// Metrics is safe on a nil or uninitialized Config.
func (c *Config) Metrics() *Metrics {
	if c == nil || c.metrics == nil {
		return NewNoopMetrics()
	}
	return c.metrics
}

// IsEnabled reports whether either provider is set.
func (c *Config) IsEnabled() bool {
	return c != nil && (c.TracerProvider != nil || c.MeterProvider != nil)
}

// QueryTracingEnabled reports whether query fragments may go on spans.
func (c *Config) QueryTracingEnabled() bool {
	return c != nil && c.EnableQueryTracing
}
