package access

import "strings"

// Role is the caller's role within one organization.
type Role string

const (
	RoleOwnerAdmin       Role = "owner_admin"
	RoleManager          Role = "manager"
	RoleLeasingStaff     Role = "leasing_staff"
	RoleMaintenanceStaff Role = "maintenance_staff"
	RoleResidentOccupant Role = "resident_occupant"
	// RoleUnknown marks a context whose role has not been resolved yet.
	RoleUnknown Role = "unknown"
)

// legacyRoles maps the short names still found in provider metadata and older rows.
var legacyRoles = map[string]Role{
	"admin":       RoleOwnerAdmin,
	"manager":     RoleManager,
	"leasing":     RoleLeasingStaff,
	"maintenance": RoleMaintenanceStaff,
	"resident":    RoleResidentOccupant,
}

// ParseRole converts a stored or provider role name into a Role.
// Unrecognized names yield RoleUnknown.
func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	switch r := Role(s); r {
	case RoleOwnerAdmin, RoleManager, RoleLeasingStaff, RoleMaintenanceStaff, RoleResidentOccupant:
		return r
	}
	if r, ok := legacyRoles[s]; ok {
		return r
	}
	return RoleUnknown
}

// String returns the canonical role name
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether r is one of the assignable roles.
func (r Role) IsValid() bool {
	return r != RoleUnknown && ParseRole(string(r)) == r
}

// IsStaff reports whether the role sees every record in its organization.
func (r Role) IsStaff() bool {
	switch r {
	case RoleOwnerAdmin, RoleManager, RoleLeasingStaff, RoleMaintenanceStaff:
		return true
	}
	return false
}

// AllRoles returns the assignable roles in descending privilege order.
func AllRoles() []Role {
	return []Role{RoleOwnerAdmin, RoleManager, RoleLeasingStaff, RoleMaintenanceStaff, RoleResidentOccupant}
}
