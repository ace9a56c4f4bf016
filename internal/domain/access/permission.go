package access

// Permission is a coarse capability checked before writes.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

// rolePermissions is the single permission matrix consulted by every
// enforcement point.
var rolePermissions = map[Role][]Permission{
	RoleOwnerAdmin:       {PermissionRead, PermissionWrite, PermissionAdmin},
	RoleManager:          {PermissionRead, PermissionWrite},
	RoleLeasingStaff:     {PermissionRead, PermissionWrite},
	RoleMaintenanceStaff: {PermissionRead, PermissionWrite},
	RoleResidentOccupant: {PermissionRead},
}

// HasPermission reports whether the caller's role grants p.
// Unknown roles and zero contexts never hold any permission.
func HasPermission(sc SecurityContext, p Permission) bool {
	if sc.IsZero() {
		return false
	}
	for _, granted := range rolePermissions[sc.Role()] {
		if granted == p {
			return true
		}
	}
	return false
}

// Permissions returns the permissions granted to role, in matrix order.
func Permissions(role Role) []Permission {
	granted := rolePermissions[role]
	out := make([]Permission, len(granted))
	copy(out, granted)
	return out
}
