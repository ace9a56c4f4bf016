// Package event provides the in-process domain event bus.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/logger"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// ErrBusStopped is returned by Publish after Stop.
var ErrBusStopped = errors.New("event bus stopped")

// InMemoryEventBus delivers events synchronously to the handlers subscribed
// in this process. Every handler sees every event even when an earlier
// handler fails; the failures are returned together.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	stopped  atomic.Bool
}

// NewInMemoryEventBus creates a new in-memory event bus. The bus accepts
// events until Stop is called.
func NewInMemoryEventBus(l *zap.Logger) *InMemoryEventBus {
	if l == nil {
		l = zap.NewNop()
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   l.Named("event_bus"),
	}
}

// Publish delivers events to their handlers in order.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if b.stopped.Load() {
		return ErrBusStopped
	}

	var result *multierror.Error
	for _, event := range events {
		for _, handler := range b.registry.GetHandlers(event.EventType()) {
			if err := b.dispatch(ctx, handler, event); err != nil {
				logger.With(ctx, b.logger).Error("Event handler failed",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.String("event_org_id", event.OrgID()),
					zap.Error(err),
				)
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

// Subscribe registers handler for eventTypes, or for the handler's own
// EventTypes when none are given. A handler with no types receives every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("Handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start reopens a stopped bus.
func (b *InMemoryEventBus) Start(context.Context) error {
	b.stopped.Store(false)
	b.logger.Info("Event bus started")
	return nil
}

// Stop makes later Publish calls fail. Deliveries are synchronous, so none
// is left in flight.
func (b *InMemoryEventBus) Stop(context.Context) error {
	b.stopped.Store(true)
	b.logger.Info("Event bus stopped")
	return nil
}

// dispatch turns a handler panic into an error.
func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked on %s: %v", event.EventType(), r)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
