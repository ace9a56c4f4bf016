package session

import (
	"context"
	"errors"
	"testing"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type noteRow struct {
	ID    string `gorm:"primaryKey"`
	OrgID string
	Body  string
}

func (noteRow) TableName() string { return "notes" }

func setupGuardedDB(t *testing.T) (*gorm.DB, *Syncer) {
	db := setupSQLiteDB(t)
	require.NoError(t, db.AutoMigrate(&noteRow{}))

	g := NewGuard(map[string]string{"notes": "org_id"})
	require.NoError(t, g.Register(db))
	t.Cleanup(func() { g.Unregister(db) })

	s := NewSyncer(db, true, nil)
	require.NoError(t, s.Bypass(context.Background(), "test_seed", func(ctx context.Context) error {
		return DB(ctx, db).Create([]noteRow{
			{ID: "n1", OrgID: "o1", Body: "first"},
			{ID: "n2", OrgID: "o1", Body: "second"},
			{ID: "n3", OrgID: "o2", Body: "other"},
		}).Error
	}))
	return db, s
}

func TestGuard_RejectsSessionlessAccess(t *testing.T) {
	db, _ := setupGuardedDB(t)
	ctx := context.Background()

	var rows []noteRow
	err := db.WithContext(ctx).Find(&rows).Error
	assert.True(t, errors.Is(err, ErrNoSession))

	err = db.WithContext(ctx).Create(&noteRow{ID: "n4", OrgID: "o1"}).Error
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestGuard_PinsQueriesToSessionOrg(t *testing.T) {
	db, s := setupGuardedDB(t)

	var rows []noteRow
	err := s.Bind(context.Background(), access.MustSecurityContext("o1", "ext-a", access.RoleManager), func(ctx context.Context) error {
		return DB(ctx, db).Order("id").Find(&rows).Error
	})

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "n1", rows[0].ID)
	assert.Equal(t, "n2", rows[1].ID)
}

func TestGuard_ExplicitForeignOrgFilterFindsNothing(t *testing.T) {
	db, s := setupGuardedDB(t)

	var rows []noteRow
	err := s.Bind(context.Background(), access.MustSecurityContext("o1", "ext-a", access.RoleManager), func(ctx context.Context) error {
		return DB(ctx, db).Where("org_id = ?", "o2").Find(&rows).Error
	})

	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGuard_ScopesUpdatesAndDeletes(t *testing.T) {
	db, s := setupGuardedDB(t)
	sc := access.MustSecurityContext("o1", "ext-a", access.RoleManager)

	var updated, deleted int64
	err := s.Bind(context.Background(), sc, func(ctx context.Context) error {
		res := DB(ctx, db).Model(&noteRow{}).Where("id = ?", "n3").Update("body", "hijacked")
		if res.Error != nil {
			return res.Error
		}
		updated = res.RowsAffected

		res = DB(ctx, db).Where("id = ?", "n3").Delete(&noteRow{})
		deleted = res.RowsAffected
		return res.Error
	})
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Zero(t, deleted)

	var other noteRow
	require.NoError(t, s.Bypass(context.Background(), "test_check", func(ctx context.Context) error {
		return DB(ctx, db).First(&other, "id = ?", "n3").Error
	}))
	assert.Equal(t, "other", other.Body)
}

func TestGuard_IgnoresUnguardedTables(t *testing.T) {
	db, _ := setupGuardedDB(t)
	type plain struct {
		ID string `gorm:"primaryKey"`
	}
	require.NoError(t, db.AutoMigrate(&plain{}))

	var rows []plain
	assert.NoError(t, db.WithContext(context.Background()).Find(&rows).Error)
}
