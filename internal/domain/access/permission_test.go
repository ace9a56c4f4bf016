package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	ctx := func(role Role) SecurityContext {
		return MustSecurityContext("org_1", "user_1", role)
	}

	t.Run("resident cannot write", func(t *testing.T) {
		assert.True(t, HasPermission(ctx(RoleResidentOccupant), PermissionRead))
		assert.False(t, HasPermission(ctx(RoleResidentOccupant), PermissionWrite))
		assert.False(t, HasPermission(ctx(RoleResidentOccupant), PermissionAdmin))
	})

	t.Run("manager is not admin", func(t *testing.T) {
		assert.True(t, HasPermission(ctx(RoleManager), PermissionWrite))
		assert.False(t, HasPermission(ctx(RoleManager), PermissionAdmin))
	})

	t.Run("owner admin holds admin", func(t *testing.T) {
		assert.True(t, HasPermission(ctx(RoleOwnerAdmin), PermissionAdmin))
	})

	t.Run("staff roles read and write", func(t *testing.T) {
		for _, r := range []Role{RoleManager, RoleLeasingStaff, RoleMaintenanceStaff} {
			assert.ElementsMatch(t, []Permission{PermissionRead, PermissionWrite}, Permissions(r), r.String())
		}
	})

	t.Run("unknown role fails closed", func(t *testing.T) {
		for _, p := range []Permission{PermissionRead, PermissionWrite, PermissionAdmin} {
			assert.False(t, HasPermission(ctx(RoleUnknown), p))
			assert.False(t, HasPermission(SecurityContext{}, p))
		}
	})

	t.Run("unknown permission is never granted", func(t *testing.T) {
		assert.False(t, HasPermission(ctx(RoleOwnerAdmin), Permission("delete_everything")))
	})
}
