package access_test

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"testing"
	"time"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type failingSyncer struct{ err error }

func (f failingSyncer) Bind(context.Context, access.SecurityContext, func(context.Context) error) error {
	return f.err
}

type recordingSyncer struct{ bound []access.SecurityContext }

func (r *recordingSyncer) Bind(ctx context.Context, sc access.SecurityContext, fn func(context.Context) error) error {
	r.bound = append(r.bound, sc)
	return fn(ctx)
}

func TestPropagator_RunWith(t *testing.T) {
	sc := access.MustSecurityContext("org_1", "user_1", access.RoleManager)

	t.Run("binds for the duration of the operation", func(t *testing.T) {
		syncer := &recordingSyncer{}
		p := appaccess.NewPropagator(syncer, nil)
		var escaped context.Context

		err := p.RunWith(context.Background(), sc, func(ctx context.Context) error {
			got, ok := appaccess.Current(ctx)
			require.True(t, ok)
			assert.True(t, got.Equal(sc))
			escaped = ctx
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, []access.SecurityContext{sc}, syncer.bound)
		_, ok := appaccess.Current(escaped)
		assert.False(t, ok, "binding must not outlive the unit of work")
	})

	t.Run("operation error is returned unchanged and context torn down", func(t *testing.T) {
		p := appaccess.NewPropagator(nil, nil)
		boom := errors.New("storage unavailable")
		var escaped context.Context

		err := p.RunWith(context.Background(), sc, func(ctx context.Context) error {
			escaped = ctx
			return boom
		})

		assert.Same(t, boom, err)
		_, ok := appaccess.Current(escaped)
		assert.False(t, ok)
	})

	t.Run("panic still tears down", func(t *testing.T) {
		p := appaccess.NewPropagator(nil, nil)
		var escaped context.Context

		assert.Panics(t, func() {
			_ = p.RunWith(context.Background(), sc, func(ctx context.Context) error {
				escaped = ctx
				panic("handler bug")
			})
		})
		_, ok := appaccess.Current(escaped)
		assert.False(t, ok)
	})

	t.Run("sync failure skips the operation", func(t *testing.T) {
		p := appaccess.NewPropagator(failingSyncer{err: errors.New("connection reset")}, nil)
		ran := false

		err := p.RunWith(context.Background(), sc, func(context.Context) error {
			ran = true
			return nil
		})

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrContextSyncFailed))
		assert.Contains(t, err.Error(), "connection reset")
		assert.False(t, ran)
	})

	t.Run("rejects zero context", func(t *testing.T) {
		p := appaccess.NewPropagator(nil, nil)
		err := p.RunWith(context.Background(), access.SecurityContext{}, func(context.Context) error {
			t.Fatal("must not run")
			return nil
		})
		assert.True(t, errors.Is(err, shared.ErrInvalidContext))
	})

	t.Run("nested identical binding is reused", func(t *testing.T) {
		syncer := &recordingSyncer{}
		p := appaccess.NewPropagator(syncer, nil)

		err := p.RunWith(context.Background(), sc, func(ctx context.Context) error {
			return p.RunWith(ctx, sc, func(inner context.Context) error {
				_, ok := appaccess.Current(inner)
				assert.True(t, ok)
				return nil
			})
		})

		require.NoError(t, err)
		assert.Len(t, syncer.bound, 1)
	})

	t.Run("nested different binding conflicts", func(t *testing.T) {
		p := appaccess.NewPropagator(nil, nil)
		other := access.MustSecurityContext("org_2", "user_9", access.RoleOwnerAdmin)

		err := p.RunWith(context.Background(), sc, func(ctx context.Context) error {
			return p.RunWith(ctx, other, func(context.Context) error {
				t.Fatal("must not run")
				return nil
			})
		})

		assert.True(t, errors.Is(err, shared.ErrContextConflict))
	})

	t.Run("cancelled unit of work reports no context", func(t *testing.T) {
		p := appaccess.NewPropagator(nil, nil)
		parent, cancel := context.WithCancel(context.Background())

		err := p.RunWith(parent, sc, func(ctx context.Context) error {
			cancel()
			_, ok := appaccess.Current(ctx)
			assert.False(t, ok)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("does not start on a cancelled context", func(t *testing.T) {
		p := appaccess.NewPropagator(nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := p.RunWith(ctx, sc, func(context.Context) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestAfterCommit(t *testing.T) {
	sc := access.MustSecurityContext("org_1", "user_1", access.RoleManager)

	t.Run("runs after the unit of work is released", func(t *testing.T) {
		p := appaccess.NewPropagator(&recordingSyncer{}, nil)
		var steps []string

		err := p.RunWith(context.Background(), sc, func(ctx context.Context) error {
			appaccess.AfterCommit(ctx, func(hctx context.Context) {
				_, bound := appaccess.Current(hctx)
				assert.False(t, bound)
				steps = append(steps, "hook")
			})
			return p.RunWith(ctx, sc, func(ctx context.Context) error {
				appaccess.AfterCommit(ctx, func(context.Context) { steps = append(steps, "nested hook") })
				steps = append(steps, "op")
				return nil
			})
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"op", "hook", "nested hook"}, steps)
	})

	t.Run("dropped when the operation fails", func(t *testing.T) {
		p := appaccess.NewPropagator(nil, nil)
		ran := false

		err := p.RunWith(context.Background(), sc, func(ctx context.Context) error {
			appaccess.AfterCommit(ctx, func(context.Context) { ran = true })
			return errors.New("constraint violated")
		})

		require.Error(t, err)
		assert.False(t, ran)
	})

	t.Run("dropped when the operation panics", func(t *testing.T) {
		p := appaccess.NewPropagator(nil, nil)
		ran := false

		assert.Panics(t, func() {
			_ = p.RunWith(context.Background(), sc, func(ctx context.Context) error {
				appaccess.AfterCommit(ctx, func(context.Context) { ran = true })
				panic("boom")
			})
		})
		assert.False(t, ran)
	})

	t.Run("runs immediately outside a unit of work", func(t *testing.T) {
		ran := false
		appaccess.AfterCommit(context.Background(), func(context.Context) { ran = true })
		assert.True(t, ran)
	})

	t.Run("runs immediately on an escaped context", func(t *testing.T) {
		p := appaccess.NewPropagator(nil, nil)
		var escaped context.Context
		require.NoError(t, p.RunWith(context.Background(), sc, func(ctx context.Context) error {
			escaped = ctx
			return nil
		}))

		ran := false
		appaccess.AfterCommit(escaped, func(context.Context) { ran = true })
		assert.True(t, ran)
	})
}

func TestCurrent_NoContext(t *testing.T) {
	_, ok := appaccess.Current(context.Background())
	assert.False(t, ok)
	assert.Panics(t, func() { appaccess.MustCurrent(context.Background()) })
}

func TestPropagator_ConcurrentIsolation(t *testing.T) {
	p := appaccess.NewPropagator(nil, nil)
	g, ctx := errgroup.WithContext(context.Background())

	for i := 0; i < 64; i++ {
		i := i
		g.Go(func() error {
			sc := access.MustSecurityContext(fmt.Sprintf("org_%d", i%4), fmt.Sprintf("user_%d", i), access.RoleManager)
			return p.RunWith(ctx, sc, func(ctx context.Context) error {
				for j := 0; j < 50; j++ {
					got, ok := appaccess.Current(ctx)
					if !ok || !got.Equal(sc) {
						return fmt.Errorf("unit %d observed %v", i, got)
					}
					if j%10 == 0 {
						time.Sleep(time.Microsecond)
					}
					runtime.Gosched()
				}
				return nil
			})
		})
	}

	require.NoError(t, g.Wait())
}
