package identity

import "context"

// OrganizationRepository defines the interface for organization persistence
type OrganizationRepository interface {
	// FindByID finds an organization by its provider id
	FindByID(ctx context.Context, id string) (*Organization, error)

	// CreateIfAbsent inserts org unless a row with the same id exists.
	// Returns true when this call created the row.
	CreateIfAbsent(ctx context.Context, org *Organization) (bool, error)

	// Save updates an existing organization
	Save(ctx context.Context, org *Organization) error

	// Delete removes the organization and every record it owns
	Delete(ctx context.Context, id string) error
}

// IdentityRepository defines the interface for identity persistence
type IdentityRepository interface {
	// FindByExternalID finds the identity of externalID within orgID
	FindByExternalID(ctx context.Context, orgID, externalID string) (*Identity, error)

	// FindAllByExternalID finds every identity held by externalID across organizations
	FindAllByExternalID(ctx context.Context, externalID string) ([]*Identity, error)

	// FindByOrg lists an organization's identities ordered by creation time
	FindByOrg(ctx context.Context, orgID string) ([]*Identity, error)

	// CreateIfAbsent inserts the identity unless (org_id, external_id) already
	// exists. It never fails on the uniqueness conflict; it reports created=false.
	CreateIfAbsent(ctx context.Context, identity *Identity) (bool, error)

	// Save updates an existing identity
	Save(ctx context.Context, identity *Identity) error

	// DeleteByExternalID removes externalID's identity in orgID
	DeleteByExternalID(ctx context.Context, orgID, externalID string) (int64, error)

	// DeleteAllByExternalID removes externalID's identities in every organization
	DeleteAllByExternalID(ctx context.Context, externalID string) (int64, error)
}
