package access

import (
	"fmt"

	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
)

// SecurityContext is the identity attached to one unit of work.
// The zero value is not a valid context.
type SecurityContext struct {
	orgID    string
	callerID string
	role     Role
}

// NewSecurityContext builds a context for the caller identified by callerID
// (the external identity key) inside orgID. An empty role is treated as RoleUnknown.
func NewSecurityContext(orgID, callerID string, role Role) (SecurityContext, error) {
	if orgID == "" {
		return SecurityContext{}, shared.ErrInvalidContext.WithDetail("reason", "empty organization id")
	}
	if callerID == "" {
		return SecurityContext{}, shared.ErrInvalidContext.WithDetail("reason", "empty caller id")
	}
	if role == "" {
		role = RoleUnknown
	}
	return SecurityContext{orgID: orgID, callerID: callerID, role: role}, nil
}

// MustSecurityContext is NewSecurityContext for fixed, known-good values.
func MustSecurityContext(orgID, callerID string, role Role) SecurityContext {
	sc, err := NewSecurityContext(orgID, callerID, role)
	if err != nil {
		panic(err)
	}
	return sc
}

// OrgID returns the organization id
func (c SecurityContext) OrgID() string { return c.orgID }

// CallerID returns the caller's external identity key
func (c SecurityContext) CallerID() string { return c.callerID }

// Role returns the resolved role, or RoleUnknown
func (c SecurityContext) Role() Role {
	if c.role == "" {
		return RoleUnknown
	}
	return c.role
}

// IsZero reports whether c was never constructed.
func (c SecurityContext) IsZero() bool {
	return c.orgID == "" || c.callerID == ""
}

// WithRole returns a copy of c carrying the resolved role.
func (c SecurityContext) WithRole(role Role) SecurityContext {
	c.role = role
	return c
}

// Equal reports whether both contexts describe the same caller, org and role.
func (c SecurityContext) Equal(o SecurityContext) bool {
	return c.orgID == o.orgID && c.callerID == o.callerID && c.Role() == o.Role()
}

func (c SecurityContext) String() string {
	return fmt.Sprintf("org=%s caller=%s role=%s", c.orgID, c.callerID, c.Role())
}
