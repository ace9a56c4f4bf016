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

// GormIdentityRepository implements IdentityRepository using GORM
type GormIdentityRepository struct {
	db *gorm.DB
}

// NewGormIdentityRepository creates a new GormIdentityRepository
func NewGormIdentityRepository(db *gorm.DB) *GormIdentityRepository {
	return &GormIdentityRepository{db: db}
}

// FindByExternalID finds the identity of externalID within orgID
func (r *GormIdentityRepository) FindByExternalID(ctx context.Context, orgID, externalID string) (*identity.Identity, error) {
	var model models.IdentityModel
	err := session.DB(ctx, r.db).
		Where("org_id = ? AND external_id = ?", orgID, externalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllByExternalID finds externalID's identities in every organization the
// session can see. Inside a bound session that is at most one.
func (r *GormIdentityRepository) FindAllByExternalID(ctx context.Context, externalID string) ([]*identity.Identity, error) {
	var rows []models.IdentityModel
	if err := session.DB(ctx, r.db).
		Where("external_id = ?", externalID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toIdentities(rows), nil
}

// FindByOrg lists an organization's identities ordered by creation time
func (r *GormIdentityRepository) FindByOrg(ctx context.Context, orgID string) ([]*identity.Identity, error) {
	var rows []models.IdentityModel
	if err := session.DB(ctx, r.db).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toIdentities(rows), nil
}

// CreateIfAbsent inserts the identity with ON CONFLICT DO NOTHING on
// (org_id, external_id). A lost race reports created=false, never an error.
func (r *GormIdentityRepository) CreateIfAbsent(ctx context.Context, ident *identity.Identity) (bool, error) {
	model := models.IdentityModelFromDomain(ident)
	result := session.DB(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}, {Name: "external_id"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return false, nil
		}
		if isForeignKeyViolation(result.Error) {
			return false, shared.ErrNotFound.WithDetail("organization", ident.OrgID)
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Save updates an existing identity's profile, role and metadata
func (r *GormIdentityRepository) Save(ctx context.Context, ident *identity.Identity) error {
	model := models.IdentityModelFromDomain(ident)
	result := session.DB(ctx, r.db).Model(model).
		Select("full_name", "email", "phone", "role", "metadata", "updated_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteByExternalID removes externalID's identity in orgID
func (r *GormIdentityRepository) DeleteByExternalID(ctx context.Context, orgID, externalID string) (int64, error) {
	result := session.DB(ctx, r.db).
		Where("org_id = ? AND external_id = ?", orgID, externalID).
		Delete(&models.IdentityModel{})
	return result.RowsAffected, result.Error
}

// DeleteAllByExternalID removes externalID's identities in every organization
// the session can see
func (r *GormIdentityRepository) DeleteAllByExternalID(ctx context.Context, externalID string) (int64, error) {
	result := session.DB(ctx, r.db).
		Where("external_id = ?", externalID).
		Delete(&models.IdentityModel{})
	return result.RowsAffected, result.Error
}

func toIdentities(rows []models.IdentityModel) []*identity.Identity {
	out := make([]*identity.Identity, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var (
	_ identity.IdentityRepository     = (*GormIdentityRepository)(nil)
	_ identity.OrganizationRepository = (*GormOrganizationRepository)(nil)
)
