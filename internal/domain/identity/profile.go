package identity

import (
	"strings"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"golang.org/x/text/unicode/norm"
)

// Profile carries the contact fields an identity provider asserts about a user.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	// ProviderCreatedAt and ProviderUpdatedAt are copied into identity metadata.
	ProviderCreatedAt *time.Time
	ProviderUpdatedAt *time.Time
}

// FullName joins first and last name in NFC form, or "" when both are empty.
func (p Profile) FullName() string {
	full := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	return norm.NFC.String(full)
}

// Metadata returns the provider bookkeeping stored with the identity.
func (p Profile) Metadata() map[string]any {
	md := make(map[string]any, 2)
	if p.ProviderCreatedAt != nil {
		md["provider_created_at"] = p.ProviderCreatedAt.UTC().Format(time.RFC3339)
	}
	if p.ProviderUpdatedAt != nil {
		md["provider_updated_at"] = p.ProviderUpdatedAt.UTC().Format(time.RFC3339)
	}
	return md
}

func validateEmail(email string) error {
	if len(email) > 320 {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot exceed 320 characters")
	}
	return nil
}

func validatePhone(phone string) error {
	if len(phone) > 50 {
		return shared.NewDomainError("INVALID_PHONE", "Phone cannot exceed 50 characters")
	}
	return nil
}
