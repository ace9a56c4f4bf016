package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/infrastructure/config"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/persistence/session"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	defaultSlowQueryThreshold = 200 * time.Millisecond
	startedAtKey              = "telemetry:started_at"
)

// Span attributes added to every database span.
var (
	AttrOrgID        = attribute.Key("app.org_id")
	AttrBypass       = attribute.Key("app.row_security_bypass")
	AttrBypassReason = attribute.Key("app.bypass_reason")
)

// RegisterDBTracing installs the otelgorm plugin on db and annotates its spans
// with the unit of work's organization or bypass label, row counts, slow
// query events and errors. It does nothing unless both tracing and database
// tracing are enabled.
func RegisterDBTracing(db *gorm.DB, dbName string, cfg config.TelemetryConfig, tp trace.TracerProvider) error {
	if !cfg.Enabled || !cfg.DBTraceEnabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(dbName)}
	if tp != nil {
		opts = append(opts, otelgorm.WithTracerProvider(tp))
	}
	if !cfg.DBLogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return fmt.Errorf("failed to register otelgorm plugin: %w", err)
	}

	threshold := cfg.DBSlowQueryThresh
	if threshold <= 0 {
		threshold = defaultSlowQueryThreshold
	}
	return registerSpanCallbacks(db, &spanAnnotator{slowQueryThreshold: threshold})
}

type spanAnnotator struct {
	slowQueryThreshold time.Duration
}

// registerSpanCallbacks must run after the otelgorm plugin is installed. The
// annotations are written between gorm's own callback and the plugin's
// otel:after:* hook, which ends the span.
func registerSpanCallbacks(db *gorm.DB, a *spanAnnotator) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("telemetry:before_create", a.before),
		cb.Query().Before("gorm:query").Register("telemetry:before_query", a.before),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", a.before),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", a.before),
		cb.Row().Before("gorm:row").Register("telemetry:before_row", a.before),
		cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", a.before),
		cb.Create().After("gorm:create").Before("otel:after:create").Register("telemetry:after_create", a.after),
		cb.Query().After("gorm:query").Before("otel:after:select").Register("telemetry:after_query", a.after),
		cb.Update().After("gorm:update").Before("otel:after:update").Register("telemetry:after_update", a.after),
		cb.Delete().After("gorm:delete").Before("otel:after:delete").Register("telemetry:after_delete", a.after),
		cb.Row().After("gorm:row").Before("otel:after:row").Register("telemetry:after_row", a.after),
		cb.Raw().After("gorm:raw").Before("otel:after:raw").Register("telemetry:after_raw", a.after),
	)
}

func (a *spanAnnotator) before(db *gorm.DB) {
	db.InstanceSet(startedAtKey, time.Now())
}

func (a *spanAnnotator) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if orgID, ok := session.OrgID(ctx); ok {
		span.SetAttributes(AttrOrgID.String(orgID))
	}
	if session.IsBypass(ctx) {
		span.SetAttributes(AttrBypass.Bool(true), AttrBypassReason.String(session.BypassReason(ctx)))
	}
	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	v, ok := db.InstanceGet(startedAtKey)
	if !ok {
		return
	}
	started, ok := v.(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(started); elapsed > a.slowQueryThreshold {
		span.SetAttributes(attribute.Bool("db.slow_query", true))
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", a.slowQueryThreshold.Milliseconds()),
		))
	}
}
