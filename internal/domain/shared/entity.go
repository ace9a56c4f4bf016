package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries the surrogate key and timestamps of a stored row.
// Organizations are keyed by the provider's org id instead and keep only
// the timestamps.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity returns an entity with a fresh id, created now.
func NewBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Touch records a modification.
func (e *BaseEntity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
