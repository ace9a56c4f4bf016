package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PropertyModel is a managed building or parcel.
type PropertyModel struct {
	OrgModel
	Name         string `gorm:"type:varchar(200);not null"`
	AddressLine1 string `gorm:"type:varchar(200)"`
	AddressLine2 string `gorm:"type:varchar(200)"`
	City         string `gorm:"type:varchar(100)"`
	State        string `gorm:"type:varchar(50)"`
	PostalCode   string `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (PropertyModel) TableName() string { return "properties" }

// UnitModel is a rentable unit within a property.
type UnitModel struct {
	OrgModel
	PropertyID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Label      string          `gorm:"type:varchar(50);not null"`
	Bedrooms   int             `gorm:"not null;default:0"`
	Bathrooms  decimal.Decimal `gorm:"type:decimal(4,1);not null;default:0"`
	MarketRent decimal.Decimal `gorm:"type:decimal(12,2)"`
}

// TableName returns the table name for GORM
func (UnitModel) TableName() string { return "units" }

// LeaseModel binds a unit to its primary resident.
type LeaseModel struct {
	OrgModel
	UnitID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	PrimaryResidentID *uuid.UUID      `gorm:"type:uuid;index"`
	Status            string          `gorm:"type:varchar(20);not null;default:'draft'"`
	StartDate         *time.Time      `gorm:"type:date"`
	EndDate           *time.Time      `gorm:"type:date"`
	RentAmount        decimal.Decimal `gorm:"type:decimal(12,2)"`
}

// TableName returns the table name for GORM
func (LeaseModel) TableName() string { return "leases" }

// LeaseParticipantModel links additional residents to a lease.
type LeaseParticipantModel struct {
	OrgModel
	LeaseID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_lease_participants_lease_identity,priority:1"`
	IdentityID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_lease_participants_lease_identity,priority:2;index"`
	Relationship string    `gorm:"type:varchar(30)"`
}

// TableName returns the table name for GORM
func (LeaseParticipantModel) TableName() string { return "lease_participants" }

// LedgerEntryModel is a charge or payment posted against a lease.
type LedgerEntryModel struct {
	OrgModel
	LeaseID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Kind     string          `gorm:"type:varchar(20);not null"`
	Amount   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Memo     string          `gorm:"type:text"`
	PostedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string { return "ledger_entries" }

// WorkOrderModel is a maintenance request for a unit.
type WorkOrderModel struct {
	OrgModel
	UnitID      *uuid.UUID `gorm:"type:uuid;index"`
	RequestedBy *uuid.UUID `gorm:"type:uuid;index"`
	Title       string     `gorm:"type:varchar(200);not null"`
	Description string     `gorm:"type:text"`
	Priority    string     `gorm:"type:varchar(20);not null;default:'normal'"`
	Status      string     `gorm:"type:varchar(20);not null;default:'open'"`
}

// TableName returns the table name for GORM
func (WorkOrderModel) TableName() string { return "work_orders" }

// NotificationModel is a message addressed to one identity.
type NotificationModel struct {
	OrgModel
	IdentityID uuid.UUID `gorm:"type:uuid;not null;index"`
	Title      string    `gorm:"type:varchar(200);not null"`
	Body       string    `gorm:"type:text"`
	ReadAt     *time.Time
}

// TableName returns the table name for GORM
func (NotificationModel) TableName() string { return "notifications" }

// TenantTables returns every organization-owned model, for AutoMigrate in tests.
func TenantTables() []any {
	return []any{
		&OrganizationModel{},
		&IdentityModel{},
		&PropertyModel{},
		&UnitModel{},
		&LeaseModel{},
		&LeaseParticipantModel{},
		&LedgerEntryModel{},
		&WorkOrderModel{},
		&NotificationModel{},
	}
}
