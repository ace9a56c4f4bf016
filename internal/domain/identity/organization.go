package identity

import (
	"strings"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// OrganizationSettings holds per-organization operating defaults.
type OrganizationSettings struct {
	Timezone        string          `json:"timezone"`
	Currency        string          `json:"currency"`
	LateFeeAmount   decimal.Decimal `json:"late_fee_amount"`
	GracePeriodDays int             `json:"grace_period_days"`
}

// DefaultOrganizationSettings returns the settings applied to new organizations.
func DefaultOrganizationSettings() OrganizationSettings {
	return OrganizationSettings{
		Timezone:        "America/New_York",
		Currency:        "USD",
		LateFeeAmount:   decimal.NewFromInt(50),
		GracePeriodDays: 5,
	}
}

// Validate checks the settings for obviously broken values.
func (s OrganizationSettings) Validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return shared.NewDomainError("INVALID_TIMEZONE", "Unknown timezone: "+s.Timezone)
	}
	if len(s.Currency) != 3 {
		return shared.NewDomainError("INVALID_CURRENCY", "Currency must be a 3-letter ISO code")
	}
	if s.LateFeeAmount.IsNegative() {
		return shared.NewDomainError("INVALID_LATE_FEE", "Late fee cannot be negative")
	}
	if s.GracePeriodDays < 0 {
		return shared.NewDomainError("INVALID_GRACE_PERIOD", "Grace period cannot be negative")
	}
	return nil
}

// Organization is the tenant boundary. Its id is the identity provider's
// organization id, so provisioning is idempotent on that id.
type Organization struct {
	shared.EventRecorder
	ID        string
	Name      string
	Settings  OrganizationSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrganization creates an organization for the provider organization id.
// An empty name falls back to the id.
func NewOrganization(id, name string, settings OrganizationSettings) (*Organization, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, shared.NewDomainError("INVALID_ORGANIZATION_ID", "Organization id cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	if err := validateOrganizationName(name); err != nil {
		return nil, err
	}
	settings.Currency = strings.ToUpper(settings.Currency)
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	org := &Organization{
		ID:        id,
		Name:      name,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	org.AddDomainEvent(NewOrganizationCreatedEvent(org))
	return org, nil
}

// Rename overwrites the display name.
func (o *Organization) Rename(name string) error {
	name = strings.TrimSpace(name)
	if err := validateOrganizationName(name); err != nil {
		return err
	}
	o.Name = name
	o.UpdatedAt = time.Now()
	o.AddDomainEvent(NewOrganizationUpdatedEvent(o))
	return nil
}

func validateOrganizationName(name string) error {
	if name == "" {
		return shared.NewDomainError("INVALID_ORGANIZATION_NAME", "Organization name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_ORGANIZATION_NAME", "Organization name cannot exceed 200 characters")
	}
	return nil
}
