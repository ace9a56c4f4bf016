package models

import (
	"time"

	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel holds the surrogate key and timestamps of uuid-keyed rows.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func baseModelOf(e shared.BaseEntity) BaseModel {
	return BaseModel{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
}

func (m BaseModel) entity() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

// OrgModel is embedded by every organization-owned row. The org_id column is
// what the session guard and the row security policies filter on.
type OrgModel struct {
	BaseModel
	OrgID string `gorm:"type:varchar(191);not null;index"`
}
