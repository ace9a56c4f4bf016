package persistence

import (
	"context"
	"errors"

	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/persistence/models"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/persistence/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrganizationRepository implements OrganizationRepository using GORM
type GormOrganizationRepository struct {
	db *gorm.DB
}

// NewGormOrganizationRepository creates a new GormOrganizationRepository
func NewGormOrganizationRepository(db *gorm.DB) *GormOrganizationRepository {
	return &GormOrganizationRepository{db: db}
}

// FindByID finds an organization by its provider id
func (r *GormOrganizationRepository) FindByID(ctx context.Context, id string) (*identity.Organization, error) {
	var model models.OrganizationModel
	if err := session.DB(ctx, r.db).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// CreateIfAbsent inserts org unless the id is taken
func (r *GormOrganizationRepository) CreateIfAbsent(ctx context.Context, org *identity.Organization) (bool, error) {
	model := models.OrganizationModelFromDomain(org)
	result := session.DB(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(model)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Save updates an existing organization's name and settings
func (r *GormOrganizationRepository) Save(ctx context.Context, org *identity.Organization) error {
	model := models.OrganizationModelFromDomain(org)
	result := session.DB(ctx, r.db).Model(model).
		Select("name", "settings", "updated_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the organization after every row it owns, children first
func (r *GormOrganizationRepository) Delete(ctx context.Context, id string) error {
	db := session.DB(ctx, r.db)
	tables := models.TenantTables()
	for i := len(tables) - 1; i >= 0; i-- {
		if _, isOrg := tables[i].(*models.OrganizationModel); isOrg {
			continue
		}
		if err := db.Where("org_id = ?", id).Delete(tables[i]).Error; err != nil {
			return err
		}
	}
	result := db.Where("id = ?", id).Delete(&models.OrganizationModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
