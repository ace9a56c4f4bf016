package access

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
)

// bindingKey is unexported so no other package can forge a binding.
type bindingKey struct{}

// binding is the ambient security context of one unit of work. It is
// released when the unit of work ends; any context.Context that escaped the
// unit of work stops reporting it from that moment on.
type binding struct {
	sc       access.SecurityContext
	released atomic.Bool

	mu          sync.Mutex
	afterCommit []func(ctx context.Context)
}

func (b *binding) onCommit(fn func(ctx context.Context)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released.Load() {
		return false
	}
	b.afterCommit = append(b.afterCommit, fn)
	return true
}

// release ends the binding and returns the hooks registered on it.
func (b *binding) release() []func(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released.Store(true)
	hooks := b.afterCommit
	b.afterCommit = nil
	return hooks
}

// AfterCommit runs fn once the unit of work bound to ctx has completed
// successfully. Hooks are dropped when the unit of work fails. Without a
// bound unit of work fn runs immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if b, ok := ctx.Value(bindingKey{}).(*binding); ok && b.onCommit(fn) {
		return
	}
	fn(ctx)
}

// Current returns the security context bound to ctx. The second result is
// false when nothing is bound, the binding was released, or the unit of work
// has been cancelled.
func Current(ctx context.Context) (access.SecurityContext, bool) {
	if ctx == nil {
		return access.SecurityContext{}, false
	}
	b, ok := ctx.Value(bindingKey{}).(*binding)
	if !ok || b.released.Load() || ctx.Err() != nil {
		return access.SecurityContext{}, false
	}
	return b.sc, true
}

// MustCurrent is Current for code paths that run only under RunWith.
func MustCurrent(ctx context.Context) access.SecurityContext {
	sc, ok := Current(ctx)
	if !ok {
		panic("access: no security context bound")
	}
	return sc
}
