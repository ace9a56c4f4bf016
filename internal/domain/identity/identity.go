package identity

import (
	"strings"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
)

// Identity is a caller's membership record within one organization.
// (OrgID, ExternalID) is unique; the same external user may hold independent
// identities in several organizations.
type Identity struct {
	shared.BaseAggregateRoot
	OrgID      string
	ExternalID string
	FullName   string
	Email      string
	Phone      string
	Role       access.Role
	Metadata   map[string]any
}

// NewIdentity creates an identity for externalID in orgID populated from profile.
func NewIdentity(orgID, externalID string, role access.Role, profile Profile) (*Identity, error) {
	orgID = strings.TrimSpace(orgID)
	externalID = strings.TrimSpace(externalID)
	if orgID == "" || externalID == "" {
		return nil, shared.ErrInvalidContext.WithDetail("reason", "identity requires organization and external id")
	}
	if !role.IsValid() {
		return nil, shared.NewDomainError("INVALID_ROLE", "Unknown role: "+role.String())
	}

	id := &Identity{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrgID:             orgID,
		ExternalID:        externalID,
		Role:              role,
		Metadata:          map[string]any{},
	}
	if err := id.applyProfile(profile); err != nil {
		return nil, err
	}
	id.AddDomainEvent(NewIdentityCreatedEvent(id))
	return id, nil
}

// SyncProfile overwrites the contact fields with profile. Updates are
// overwrites so redelivered or reordered events converge.
func (i *Identity) SyncProfile(profile Profile) error {
	if err := i.applyProfile(profile); err != nil {
		return err
	}
	i.Touch()
	i.AddDomainEvent(NewIdentityUpdatedEvent(i))
	return nil
}

// ChangeRole assigns a new role.
func (i *Identity) ChangeRole(role access.Role) error {
	if !role.IsValid() {
		return shared.NewDomainError("INVALID_ROLE", "Unknown role: "+role.String())
	}
	if i.Role == role {
		return nil
	}
	i.Role = role
	i.Touch()
	i.AddDomainEvent(NewIdentityUpdatedEvent(i))
	return nil
}

// MarkRemoved records the removal event; deletion itself is the repository's job.
func (i *Identity) MarkRemoved() {
	i.AddDomainEvent(NewIdentityRemovedEvent(i.OrgID, i.ExternalID, i.ID.String()))
}

func (i *Identity) applyProfile(p Profile) error {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if err := validateEmail(email); err != nil {
		return err
	}
	phone := strings.TrimSpace(p.Phone)
	if err := validatePhone(phone); err != nil {
		return err
	}
	i.Email = email
	i.Phone = phone
	i.FullName = p.FullName()
	if i.Metadata == nil {
		i.Metadata = map[string]any{}
	}
	for k, v := range p.Metadata() {
		i.Metadata[k] = v
	}
	return nil
}
