package models

import (
	"time"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
)

// OrganizationModel is the persistence model for the Organization aggregate.
// Its primary key is the identity provider's organization id.
type OrganizationModel struct {
	ID        string                        `gorm:"type:varchar(191);primaryKey"`
	Name      string                        `gorm:"type:varchar(200);not null"`
	Settings  identity.OrganizationSettings `gorm:"serializer:json;not null"`
	CreatedAt time.Time                     `gorm:"not null"`
	UpdatedAt time.Time                     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrganizationModel) TableName() string {
	return "organizations"
}

// ToDomain converts the persistence model to a domain Organization
func (m *OrganizationModel) ToDomain() *identity.Organization {
	return &identity.Organization{
		ID:        m.ID,
		Name:      m.Name,
		Settings:  m.Settings,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// OrganizationModelFromDomain creates a persistence model from a domain Organization
func OrganizationModelFromDomain(o *identity.Organization) *OrganizationModel {
	return &OrganizationModel{
		ID:        o.ID,
		Name:      o.Name,
		Settings:  o.Settings,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// IdentityModel is the persistence model for the Identity aggregate.
type IdentityModel struct {
	BaseModel
	OrgID      string         `gorm:"type:varchar(191);not null;uniqueIndex:idx_identities_org_external,priority:1"`
	ExternalID string         `gorm:"type:varchar(191);not null;uniqueIndex:idx_identities_org_external,priority:2;index"`
	FullName   string         `gorm:"type:varchar(200)"`
	Email      string         `gorm:"type:varchar(320)"`
	Phone      string         `gorm:"type:varchar(50)"`
	Role       string         `gorm:"type:varchar(32);not null"`
	Metadata   map[string]any `gorm:"serializer:json"`
}

// TableName returns the table name for GORM
func (IdentityModel) TableName() string {
	return "identities"
}

// ToDomain converts the persistence model to a domain Identity.
// Unknown stored roles load as RoleUnknown, which the policy engine denies.
func (m *IdentityModel) ToDomain() *identity.Identity {
	md := m.Metadata
	if md == nil {
		md = map[string]any{}
	}
	return &identity.Identity{
		BaseAggregateRoot: shared.BaseAggregateRoot{BaseEntity: m.entity()},
		OrgID:             m.OrgID,
		ExternalID:        m.ExternalID,
		FullName:          m.FullName,
		Email:             m.Email,
		Phone:             m.Phone,
		Role:              access.ParseRole(m.Role),
		Metadata:          md,
	}
}

// IdentityModelFromDomain creates a persistence model from a domain Identity
func IdentityModelFromDomain(i *identity.Identity) *IdentityModel {
	return &IdentityModel{
		BaseModel:  baseModelOf(i.BaseEntity),
		OrgID:      i.OrgID,
		ExternalID: i.ExternalID,
		FullName:   i.FullName,
		Email:      i.Email,
		Phone:      i.Phone,
		Role:       i.Role.String(),
		Metadata:   i.Metadata,
	}
}
