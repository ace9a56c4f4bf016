package shared

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// EventRecorder collects domain events raised by an aggregate until they are published.
type EventRecorder struct {
	domainEvents []DomainEvent
}

// AddDomainEvent adds a domain event to be published
func (r *EventRecorder) AddDomainEvent(event DomainEvent) {
	r.domainEvents = append(r.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (r *EventRecorder) GetDomainEvents() []DomainEvent {
	return r.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (r *EventRecorder) ClearDomainEvents() {
	r.domainEvents = nil
}

// BaseAggregateRoot provides common fields for uuid-keyed aggregate roots
type BaseAggregateRoot struct {
	BaseEntity
	EventRecorder
}

// NewBaseAggregateRoot creates a new base aggregate root
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
	}
}
