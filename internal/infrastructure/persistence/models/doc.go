// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
//   - base.go: BaseModel and OrgModel
//   - identity.go: organizations and identities
//   - property.go: the organization-owned property management tables
//
// The authoritative schema, including row-level security, lives in the SQL
// migrations. AutoMigrate on these models is only used for SQLite in tests.
package models
