package identity

import "github.com/adamj-ops/everyday-properties/internal/domain/shared"

// Aggregate type constants
const (
	AggregateTypeOrganization = "Organization"
	AggregateTypeIdentity     = "Identity"
)

// Event type constants
const (
	EventTypeOrganizationCreated = "OrganizationCreated"
	EventTypeOrganizationUpdated = "OrganizationUpdated"
	EventTypeOrganizationRemoved = "OrganizationRemoved"
	EventTypeIdentityCreated     = "IdentityCreated"
	EventTypeIdentityUpdated     = "IdentityUpdated"
	EventTypeIdentityRemoved     = "IdentityRemoved"
)

// OrganizationCreatedEvent is published when an organization is provisioned
type OrganizationCreatedEvent struct {
	shared.BaseDomainEvent
	Name string `json:"name"`
}

// NewOrganizationCreatedEvent creates a new OrganizationCreatedEvent
func NewOrganizationCreatedEvent(org *Organization) *OrganizationCreatedEvent {
	return &OrganizationCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrganizationCreated, AggregateTypeOrganization, org.ID, org.ID),
		Name:            org.Name,
	}
}

// OrganizationUpdatedEvent is published when an organization is renamed
type OrganizationUpdatedEvent struct {
	shared.BaseDomainEvent
	Name string `json:"name"`
}

// NewOrganizationUpdatedEvent creates a new OrganizationUpdatedEvent
func NewOrganizationUpdatedEvent(org *Organization) *OrganizationUpdatedEvent {
	return &OrganizationUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrganizationUpdated, AggregateTypeOrganization, org.ID, org.ID),
		Name:            org.Name,
	}
}

// OrganizationRemovedEvent is published after an organization and everything it owns is deleted
type OrganizationRemovedEvent struct {
	shared.BaseDomainEvent
}

// NewOrganizationRemovedEvent creates a new OrganizationRemovedEvent
func NewOrganizationRemovedEvent(orgID string) *OrganizationRemovedEvent {
	return &OrganizationRemovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrganizationRemoved, AggregateTypeOrganization, orgID, orgID),
	}
}

// IdentityCreatedEvent is published when an identity is created
type IdentityCreatedEvent struct {
	shared.BaseDomainEvent
	ExternalID string `json:"external_id"`
	Role       string `json:"role"`
}

// NewIdentityCreatedEvent creates a new IdentityCreatedEvent
func NewIdentityCreatedEvent(id *Identity) *IdentityCreatedEvent {
	return &IdentityCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeIdentityCreated, AggregateTypeIdentity, id.ID.String(), id.OrgID),
		ExternalID:      id.ExternalID,
		Role:            id.Role.String(),
	}
}

// IdentityUpdatedEvent is published when profile fields or role change
type IdentityUpdatedEvent struct {
	shared.BaseDomainEvent
	ExternalID string `json:"external_id"`
	Role       string `json:"role"`
}

// NewIdentityUpdatedEvent creates a new IdentityUpdatedEvent
func NewIdentityUpdatedEvent(id *Identity) *IdentityUpdatedEvent {
	return &IdentityUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeIdentityUpdated, AggregateTypeIdentity, id.ID.String(), id.OrgID),
		ExternalID:      id.ExternalID,
		Role:            id.Role.String(),
	}
}

// NewIdentityChangedEvent creates an IdentityUpdatedEvent for a change made
// outside the Identity aggregate.
func NewIdentityChangedEvent(orgID, externalID, identityID, role string) *IdentityUpdatedEvent {
	return &IdentityUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeIdentityUpdated, AggregateTypeIdentity, identityID, orgID),
		ExternalID:      externalID,
		Role:            role,
	}
}

// IdentityRemovedEvent is published when a membership ends. OrgID is empty
// when the external user was removed from every organization at once.
type IdentityRemovedEvent struct {
	shared.BaseDomainEvent
	ExternalID string `json:"external_id"`
}

// NewIdentityRemovedEvent creates a new IdentityRemovedEvent
func NewIdentityRemovedEvent(orgID, externalID, identityID string) *IdentityRemovedEvent {
	return &IdentityRemovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeIdentityRemoved, AggregateTypeIdentity, identityID, orgID),
		ExternalID:      externalID,
	}
}
