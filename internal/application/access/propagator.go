package access

import (
	"context"
	"errors"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"go.uber.org/zap"
)

// StorageSyncer informs the storage collaborator of the bound context so its
// own row security sees the same (org, caller) pair. Bind runs fn with a
// context carrying the synchronized session. When synchronization fails Bind
// must not call fn.
type StorageSyncer interface {
	Bind(ctx context.Context, sc access.SecurityContext, fn func(ctx context.Context) error) error
}

// NoopSyncer is the StorageSyncer for collaborators without native row security.
type NoopSyncer struct{}

// Bind calls fn directly.
func (NoopSyncer) Bind(ctx context.Context, _ access.SecurityContext, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Propagator binds a security context to a unit of work and guarantees it is
// torn down on every exit path.
type Propagator struct {
	syncer StorageSyncer
	logger *zap.Logger
}

// NewPropagator creates a Propagator. A nil syncer means NoopSyncer.
func NewPropagator(syncer StorageSyncer, logger *zap.Logger) *Propagator {
	if syncer == nil {
		syncer = NoopSyncer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Propagator{syncer: syncer, logger: logger}
}

// RunWith runs op with sc bound as the ambient security context.
//
// The binding lives in a child of ctx, so concurrent units of work never see
// each other's context. It is released when RunWith returns, including when
// op fails or panics. If storage synchronization fails op is not run and the
// error matches shared.ErrContextSyncFailed. op's own error is returned
// unchanged.
//
// Re-entering RunWith with the context already bound runs op directly;
// binding a different context inside a unit of work fails with
// shared.ErrContextConflict. Hooks registered with AfterCommit run after the
// outermost RunWith has released the binding, and only when it succeeded.
func (p *Propagator) RunWith(ctx context.Context, sc access.SecurityContext, op func(ctx context.Context) error) error {
	if sc.IsZero() {
		return shared.ErrInvalidContext.WithDetail("reason", "zero security context")
	}
	if bound, ok := Current(ctx); ok {
		if bound.Equal(sc) {
			return op(ctx)
		}
		return shared.ErrContextConflict.
			WithDetail("bound", bound.String()).
			WithDetail("requested", sc.String())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &binding{sc: sc}
	bctx, cancel := context.WithCancel(context.WithValue(ctx, bindingKey{}, b))
	committed := false
	defer func() {
		hooks := b.release()
		cancel()
		if committed {
			for _, fn := range hooks {
				fn(ctx)
			}
		}
	}()

	ran := false
	err := p.syncer.Bind(bctx, sc, func(sctx context.Context) error {
		ran = true
		return op(sctx)
	})
	if err != nil && !ran {
		if !errors.Is(err, shared.ErrContextSyncFailed) {
			err = shared.ErrContextSyncFailed.Wrap(err)
		}
		p.logger.Error("Security context sync failed",
			zap.String("org_id", sc.OrgID()),
			zap.String("caller_id", sc.CallerID()),
			zap.Error(err))
	}
	committed = err == nil
	return err
}

// RunWithResult is RunWith for operations that produce a value.
func RunWithResult[T any](ctx context.Context, p *Propagator, sc access.SecurityContext, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.RunWith(ctx, sc, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
