package migration

import (
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/adamj-ops/everyday-properties/migrations"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	names, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, names)

	t.Run("every up has a down", func(t *testing.T) {
		for _, name := range names {
			_, err := fs.Stat(migrations.FS, name+".down.sql")
			assert.NoError(t, err, "missing down migration for %s", name)
		}
	})

	t.Run("golang-migrate reads the versions in order", func(t *testing.T) {
		src, err := iofs.New(migrations.FS, ".")
		require.NoError(t, err)
		defer src.Close()

		version, err := src.First()
		require.NoError(t, err)
		seen := []uint{version}
		for {
			next, err := src.Next(version)
			if err != nil {
				break
			}
			seen = append(seen, next)
			version = next
		}
		assert.Equal(t, []uint{1, 2, 3}, seen)
	})

	t.Run("every organization table has forced row security", func(t *testing.T) {
		src, err := iofs.New(migrations.FS, ".")
		require.NoError(t, err)
		defer src.Close()

		r, _, err := src.ReadUp(3)
		require.NoError(t, err)
		defer r.Close()
		body, err := io.ReadAll(r)
		require.NoError(t, err)
		sql := string(body)

		for _, table := range []string{
			"organizations", "identities", "properties", "units", "leases",
			"lease_participants", "ledger_entries", "work_orders", "notifications",
		} {
			assert.Contains(t, sql, "ALTER TABLE "+table+" FORCE ROW LEVEL SECURITY")
			assert.True(t, strings.Contains(sql, "CREATE POLICY "+table+"_isolation ON "+table), table)
		}
		assert.Contains(t, sql, "current_setting('app.org_id', true)")
		assert.Contains(t, sql, "current_setting('app.user_id', true)")
	})
}
