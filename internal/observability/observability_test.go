package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(
		WithServiceName("test-service"),
		WithServiceVersion("1.2.3"),
		WithDetailedDBTracing(),
		WithQueryTracing(),
	)

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected service name 'test-service', got '%s'", cfg.ServiceName)
	}
	if cfg.ServiceVersion != "1.2.3" {
		t.Errorf("expected service version '1.2.3', got '%s'", cfg.ServiceVersion)
	}
	if !cfg.EnableDetailedDBTracing {
		t.Error("expected detailed DB tracing to be enabled")
	}
	if !cfg.QueryTracingEnabled() {
		t.Error("expected query tracing to be enabled")
	}
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	if cfg.ServiceName != "sprest-client" {
		t.Errorf("expected default service name, got '%s'", cfg.ServiceName)
	}
	if cfg.IsEnabled() {
		t.Error("expected observability to be disabled without providers")
	}
	if cfg.QueryTracingEnabled() {
		t.Error("expected query tracing to be disabled by default")
	}
}

func TestConfigInitialize(t *testing.T) {
	cfg := NewConfig(
		WithTracerProvider(tracenoop.NewTracerProvider()),
		WithMeterProvider(noop.NewMeterProvider()),
		WithServiceName("test-service"),
	)

	if err := cfg.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsEnabled() {
		t.Error("expected observability to be enabled")
	}
	if cfg.Tracer() == nil {
		t.Error("expected tracer to be initialized")
	}
	if cfg.Metrics() == nil {
		t.Error("expected metrics to be initialized")
	}
}

func TestNilConfigAccessors(t *testing.T) {
	var cfg *Config
	if cfg.Tracer() == nil {
		t.Error("expected noop tracer from nil config")
	}
	if cfg.Metrics() == nil {
		t.Error("expected noop metrics from nil config")
	}
	if cfg.IsEnabled() {
		t.Error("nil config should not be enabled")
	}
}

func TestNoopTracer(t *testing.T) {
	tracer := NewNoopTracer()
	ctx := context.Background()

	ctx, span := tracer.StartSpan(ctx, "test")
	span.End()

	ctx, span = tracer.StartOperation(ctx, OpGet, "Tasks")
	tracer.AddQuery(span, "$select=Id")
	tracer.AddQuery(span, "")
	span.End()

	ctx, span = tracer.StartOperation(ctx, OpContextInfo, "")
	span.End()

	ctx, span = tracer.StartDBQuery(ctx, "SELECT")
	span.End()

	req := httptest.NewRequest(http.MethodGet, "https://contoso.sharepoint.com/_api/web", nil)
	ctx, span = tracer.StartRequest(ctx, req)
	tracer.SetHTTPStatus(ctx, http.StatusNotFound)
	span.End()
}

func TestNoopMetrics(t *testing.T) {
	metrics := NewNoopMetrics()
	ctx := context.Background()

	metrics.RecordRequest(ctx, OpGet, http.MethodGet, http.StatusOK, time.Second)
	metrics.RecordResultCount(ctx, "Tasks", 10)
	metrics.RecordUpload(ctx, "Documents", 2048)
	metrics.RecordDBQuery(ctx, "SELECT", 100*time.Millisecond)
	metrics.RecordError(ctx, OpUpdate, "precondition_failed")
}

func TestRealMetricsWithNoopProvider(t *testing.T) {
	metrics := NewMetrics(noop.NewMeterProvider())
	metrics.RecordRequest(context.Background(), OpCreate, http.MethodPost, http.StatusCreated, time.Millisecond)
	metrics.RecordError(context.Background(), OpCreate, "conflict")
}

func TestRegisterGORMCallbacks_DisabledIsNoop(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := RegisterGORMCallbacks(db, nil); err != nil {
		t.Fatalf("nil config: unexpected error: %v", err)
	}
	if err := RegisterGORMCallbacks(db, NewConfig(WithDetailedDBTracing())); err != nil {
		t.Fatalf("no tracer provider: unexpected error: %v", err)
	}
}

func TestRegisterGORMCallbacks_TracesQueries(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	cfg := NewConfig(
		WithTracerProvider(tracenoop.NewTracerProvider()),
		WithMeterProvider(noop.NewMeterProvider()),
		WithDetailedDBTracing(),
	)
	if err := cfg.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := RegisterGORMCallbacks(db, cfg); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}

	type row struct {
		ID   int `gorm:"primarykey"`
		Name string
	}
	if err := db.AutoMigrate(&row{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(&row{ID: 1, Name: "a"}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got row
	if err := db.First(&got, 1).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if got.Name != "a" {
		t.Errorf("expected name 'a', got %q", got.Name)
	}
	if err := db.Delete(&row{}, 1).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}
}

// recordingMeterProvider counts Record calls per Float64Histogram name.
type recordingMeterProvider struct {
	noop.MeterProvider

	mu      sync.Mutex
	records map[string]int
}

func (p *recordingMeterProvider) Meter(string, ...metric.MeterOption) metric.Meter {
	return recordingMeter{provider: p}
}

func (p *recordingMeterProvider) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records[name]
}

type recordingMeter struct {
	noop.Meter
	provider *recordingMeterProvider
}

func (m recordingMeter) Float64Histogram(name string, _ ...metric.Float64HistogramOption) (metric.Float64Histogram, error) {
	return recordingHistogram{name: name, provider: m.provider}, nil
}

type recordingHistogram struct {
	noop.Float64Histogram
	name     string
	provider *recordingMeterProvider
}

func (h recordingHistogram) Record(context.Context, float64, ...metric.RecordOption) {
	h.provider.mu.Lock()
	defer h.provider.mu.Unlock()
	if h.provider.records == nil {
		h.provider.records = make(map[string]int)
	}
	h.provider.records[h.name]++
}

func TestRegisterGORMCallbacks_MeterOnlyRecordsDurations(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	mp := &recordingMeterProvider{}
	cfg := NewConfig(WithMeterProvider(mp))
	if err := cfg.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := RegisterGORMCallbacks(db, cfg); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}
	if db.Callback().Query().Get("sprest:after_query") == nil {
		t.Fatal("expected timing callback without a tracer provider")
	}

	type row struct {
		ID   int `gorm:"primarykey"`
		Name string
	}
	if err := db.AutoMigrate(&row{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	baseline := mp.count("sharepoint.db.query.duration")
	if err := db.Create(&row{ID: 1, Name: "a"}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got row
	if err := db.First(&got, 1).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if n := mp.count("sharepoint.db.query.duration") - baseline; n < 2 {
		t.Errorf("expected create and query durations, got %d samples", n)
	}
}

func TestRegisterGORMCallbacks_TracingWithoutDetailIsNoop(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	cfg := NewConfig(WithTracerProvider(tracenoop.NewTracerProvider()))
	if err := cfg.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := RegisterGORMCallbacks(db, cfg); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}
	if db.Callback().Query().Get("sprest:after_query") != nil {
		t.Error("expected no callbacks without detailed DB tracing or a meter provider")
	}
}
