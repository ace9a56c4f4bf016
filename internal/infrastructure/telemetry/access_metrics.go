package telemetry

import (
	"context"
	"fmt"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys of the access metrics. Organization and caller ids are left
// out to keep cardinality bounded; they are in the logs.
var (
	AttrEntity  = attribute.Key("access.entity")
	AttrAction  = attribute.Key("access.action")
	AttrOutcome = attribute.Key("access.outcome")
	AttrReason  = attribute.Key("access.reason")
)

// Session outcomes recorded by RecordSession.
const (
	SessionResolved        = "resolved"
	SessionCreated         = "created"
	SessionNoOrganization  = "no_organization"
	SessionUnauthenticated = "unauthenticated"
	SessionFailed          = "failed"
)

// AccessMetrics counts policy decisions and session resolutions.
type AccessMetrics struct {
	decisions metric.Int64Counter
	sessions  metric.Int64Counter
}

// NewAccessMetrics creates the instruments on meter.
func NewAccessMetrics(meter metric.Meter) (*AccessMetrics, error) {
	decisions, err := meter.Int64Counter("access.decisions",
		metric.WithDescription("Authorization decisions made by the access gateway"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create access.decisions counter: %w", err)
	}
	sessions, err := meter.Int64Counter("access.sessions",
		metric.WithDescription("Request sessions by resolution outcome"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create access.sessions counter: %w", err)
	}
	return &AccessMetrics{decisions: decisions, sessions: sessions}, nil
}

// RecordDecision counts one authorization decision.
func (m *AccessMetrics) RecordDecision(ctx context.Context, entity access.EntityType, action access.Action, allowed bool, reason string) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		AttrEntity.String(string(entity)),
		AttrAction.String(string(action)),
		AttrOutcome.String(outcome),
		AttrReason.String(reason),
	))
}

// RecordSession counts one request session by outcome.
func (m *AccessMetrics) RecordSession(ctx context.Context, outcome string) {
	m.sessions.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(outcome)))
}
