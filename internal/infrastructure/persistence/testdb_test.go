package persistence

import (
	"context"
	"testing"
	"time"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/persistence/models"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/persistence/session"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Identity ids are real uuids so that rows load into IdentityModel.
const (
	idA = "00000000-0000-4000-8000-00000000000a"
	idB = "00000000-0000-4000-8000-00000000000b"
	idC = "00000000-0000-4000-8000-00000000000c"
	idD = "00000000-0000-4000-8000-00000000000d"
)

type testEnv struct {
	db         *gorm.DB
	syncer     *session.Syncer
	propagator *appaccess.Propagator
}

// setupTenantDB opens a guarded single-connection SQLite database with the
// tenant schema. A single connection keeps the in-memory database shared
// between transactions.
func setupTenantDB(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.TenantTables()...))
	require.NoError(t, session.NewGuard(session.CatalogTables(access.DefaultCatalog())).Register(db))

	syncer := session.NewSyncer(db, true, nil)
	return &testEnv{
		db:         db,
		syncer:     syncer,
		propagator: appaccess.NewPropagator(syncer, nil),
	}
}

// seed inserts rows bypassing the guard, as provider synchronization would.
func (e *testEnv) seed(t *testing.T, table string, rows ...map[string]any) {
	t.Helper()
	require.NoError(t, e.syncer.Bypass(context.Background(), "test_seed", func(ctx context.Context) error {
		for i, row := range rows {
			stamp := time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC)
			for _, field := range []string{"created_at", "updated_at"} {
				if _, ok := row[field]; !ok {
					row[field] = stamp
				}
			}
			if err := session.DB(ctx, e.db).Table(table).Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	}))
}

func (e *testEnv) within(t *testing.T, orgID, callerID string, role access.Role, fn func(ctx context.Context) error) error {
	t.Helper()
	return e.propagator.RunWith(context.Background(), access.MustSecurityContext(orgID, callerID, role), fn)
}

// seedScenario loads two organizations: O1 with owner A and residents B and
// D, O2 with owner C. B holds lease-1 on unit-1 and requested wo-1.
func (e *testEnv) seedScenario(t *testing.T) {
	t.Helper()
	e.seed(t, "organizations",
		map[string]any{"id": "o1", "name": "Org One", "settings": `{}`},
		map[string]any{"id": "o2", "name": "Org Two", "settings": `{}`},
	)
	e.seed(t, "identities",
		map[string]any{"id": idA, "org_id": "o1", "external_id": "ext-a", "role": "owner_admin"},
		map[string]any{"id": idB, "org_id": "o1", "external_id": "ext-b", "role": "resident_occupant"},
		map[string]any{"id": idD, "org_id": "o1", "external_id": "ext-d", "role": "resident_occupant"},
		map[string]any{"id": idC, "org_id": "o2", "external_id": "ext-c", "role": "owner_admin"},
	)
	e.seed(t, "leases",
		map[string]any{"id": "lease-1", "org_id": "o1", "unit_id": "unit-1", "primary_resident_id": idB, "status": "active"},
	)
	e.seed(t, "work_orders",
		map[string]any{"id": "wo-1", "org_id": "o1", "unit_id": "unit-1", "requested_by": idB, "title": "Leaky faucet"},
		map[string]any{"id": "wo-2", "org_id": "o2", "unit_id": "unit-9", "requested_by": idC, "title": "Broken heater"},
	)
}
