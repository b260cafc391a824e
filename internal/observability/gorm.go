package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	gormSpanKey      = "sprest:gorm:span"
	gormStartTimeKey = "sprest:gorm:start"
)

// RegisterGORMCallbacks hooks mirror store statements into observability.
// Statements get a span when a tracer provider is set and detailed DB
// tracing is enabled, and a duration sample when a meter provider is set.
// Without either it registers nothing.
func RegisterGORMCallbacks(db *gorm.DB, cfg *Config) error {
	if cfg == nil {
		return nil
	}
	tracing := cfg.TracerProvider != nil && cfg.EnableDetailedDBTracing
	timing := cfg.MeterProvider != nil
	if !tracing && !timing {
		return nil
	}

	tracer := cfg.Tracer()
	if !tracing {
		tracer = nil
	}
	cb := db.Callback()

	if err := cb.Query().Before("gorm:query").Register("sprest:before_query", before(tracer, "db.query")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("sprest:after_query", after(tracer, cfg, "SELECT")); err != nil {
		return err
	}
	if err := cb.Create().Before("gorm:create").Register("sprest:before_create", before(tracer, "db.create")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("sprest:after_create", after(tracer, cfg, "INSERT")); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("sprest:before_update", before(tracer, "db.update")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("sprest:after_update", after(tracer, cfg, "UPDATE")); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("sprest:before_delete", before(tracer, "db.delete")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("sprest:after_delete", after(tracer, cfg, "DELETE")); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("sprest:before_row", before(tracer, "db.row")); err != nil {
		return err
	}
	return cb.Row().After("gorm:row").Register("sprest:after_row", after(tracer, cfg, "ROW"))
}

// before stamps the start time and, with a non-nil tracer, opens a span.
func before(tracer *Tracer, spanName string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		db.InstanceSet(gormStartTimeKey, time.Now())
		if tracer == nil {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, span := tracer.StartSpan(ctx, spanName,
			attribute.String("db.system", db.Dialector.Name()),
		)
		db.Statement.Context = ctx
		db.InstanceSet(gormSpanKey, span)
	}
}

func after(tracer *Tracer, cfg *Config, operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if startVal, ok := db.InstanceGet(gormStartTimeKey); ok {
			if start, ok := startVal.(time.Time); ok {
				ctx := db.Statement.Context
				if ctx == nil {
					ctx = context.Background()
				}
				cfg.Metrics().RecordDBQuery(ctx, operation, time.Since(start))
			}
		}

		if tracer == nil {
			return
		}
		spanVal, ok := db.InstanceGet(gormSpanKey)
		if !ok {
			return
		}
		span, ok := spanVal.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if db.Statement.Table != "" {
			span.SetAttributes(attribute.String(AttrStoreTable, db.Statement.Table))
		}
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
		if db.Error != nil {
			tracer.RecordError(span, db.Error)
		}
	}
}
