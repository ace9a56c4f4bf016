package shared

import "context"

// EventHandler reacts to membership and organization events, for example by
// dropping cached identities.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the event types to deliver; empty means all of them.
	EventTypes() []string
}

// EventPublisher delivers events after the change that raised them was
// written.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus is an EventPublisher that handlers can subscribe to. Publish fails
// between Stop and the next Start.
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
