// Package session synchronizes the bound security context with the database.
//
// Every unit of work runs in one transaction. On PostgreSQL the transaction
// starts with
//
//	SELECT set_config('app.org_id', $1, true), set_config('app.user_id', $2, true)
//
// so the row-level security policies installed by the migrations see the same
// organization and caller as the in-process policy engine. Repositories obtain
// the transaction with DB(ctx, fallback).
package session

import (
	"context"
	"errors"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoSession is returned when a guarded table is touched outside a unit of work.
var ErrNoSession = errors.New("session: tenant table accessed without a bound session")

const (
	bindSQL   = "SELECT set_config('app.org_id', ?, true), set_config('app.user_id', ?, true)"
	bypassSQL = "SELECT set_config('app.bypass', 'on', true)"
)

type stateKey struct{}

// state is the database session of one unit of work.
type state struct {
	tx       *gorm.DB
	orgID    string
	callerID string
	bypass   bool
	reason   string
}

// Syncer implements the propagator's storage synchronization over GORM.
type Syncer struct {
	db          *gorm.DB
	rowSecurity bool
	logger      *zap.Logger
}

// NewSyncer creates a Syncer. Row security variables are only set when
// rowSecurity is true and the dialect is PostgreSQL; other dialects still get
// one transaction per unit of work.
func NewSyncer(db *gorm.DB, rowSecurity bool, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		db:          db,
		rowSecurity: rowSecurity && db.Dialector.Name() == "postgres",
		logger:      logger,
	}
}

// RowSecurity reports whether session variables are sent to the database.
func (s *Syncer) RowSecurity() bool {
	return s.rowSecurity
}

// Bind opens the unit of work's transaction, synchronizes sc and runs fn.
// fn's error rolls the transaction back and is returned unchanged.
func (s *Syncer) Bind(ctx context.Context, sc access.SecurityContext, fn func(ctx context.Context) error) error {
	synced := false
	err := DB(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		if s.rowSecurity {
			if err := tx.Exec(bindSQL, sc.OrgID(), sc.CallerID()).Error; err != nil {
				return err
			}
		}
		synced = true
		return fn(context.WithValue(ctx, stateKey{}, &state{
			tx:       tx,
			orgID:    sc.OrgID(),
			callerID: sc.CallerID(),
		}))
	})
	if !synced {
		if err == nil {
			err = errors.New("transaction did not start")
		}
		return shared.ErrContextSyncFailed.Wrap(err)
	}
	return err
}

// Bypass runs fn in a transaction that row security does not filter. It is
// reserved for identity-provider synchronization that spans organizations;
// reason is a stable audit label.
func (s *Syncer) Bypass(ctx context.Context, reason string, fn func(ctx context.Context) error) error {
	if reason == "" {
		return errors.New("session: bypass requires a reason")
	}
	s.logger.Info("Row security bypass",
		zap.String("reason", reason),
		zap.Time("at", time.Now()))

	return DB(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		if s.rowSecurity {
			if err := tx.Exec(bypassSQL).Error; err != nil {
				return err
			}
		}
		return fn(context.WithValue(ctx, stateKey{}, &state{tx: tx, bypass: true, reason: reason}))
	})
}

// DB returns the unit of work's transaction bound to ctx, or fallback when
// ctx carries no session.
func DB(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if st, ok := ctx.Value(stateKey{}).(*state); ok {
		return st.tx.WithContext(ctx)
	}
	return fallback.WithContext(ctx)
}

// OrgID returns the organization of the bound session, if any.
func OrgID(ctx context.Context) (string, bool) {
	st, ok := ctx.Value(stateKey{}).(*state)
	if !ok || st.bypass {
		return "", false
	}
	return st.orgID, true
}

// IsBypass reports whether ctx runs in a bypass session.
func IsBypass(ctx context.Context) bool {
	st, ok := ctx.Value(stateKey{}).(*state)
	return ok && st.bypass
}

// BypassReason returns the audit label of a bypass session.
func BypassReason(ctx context.Context) string {
	if st, ok := ctx.Value(stateKey{}).(*state); ok && st.bypass {
		return st.reason
	}
	return ""
}

func hasSession(ctx context.Context) bool {
	_, ok := ctx.Value(stateKey{}).(*state)
	return ok
}
