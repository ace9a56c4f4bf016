package access

import "fmt"

// EntityType names a kind of tenant-scoped record.
type EntityType string

const (
	EntityOrganization     EntityType = "organization"
	EntityIdentity         EntityType = "identity"
	EntityProperty         EntityType = "property"
	EntityUnit             EntityType = "unit"
	EntityLease            EntityType = "lease"
	EntityLeaseParticipant EntityType = "lease_participant"
	EntityLedgerEntry      EntityType = "ledger_entry"
	EntityWorkOrder        EntityType = "work_order"
	EntityNotification     EntityType = "notification"
)

// Action is the operation requested on a record.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// IsWrite reports whether the action mutates storage.
func (a Action) IsWrite() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// ParseAction converts a name into an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// EntitySpec describes how records of one entity type are stored and which
// fields the policy reasons about.
type EntitySpec struct {
	Type  EntityType
	Table string
	// OrgField holds the owning organization id. For organizations it is the primary key.
	OrgField string
	// Fields lists every column a caller may filter on or write.
	Fields []string
}

// HasField reports whether name is a known column of the entity.
func (s EntitySpec) HasField(name string) bool {
	for _, f := range s.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Catalog is the set of entity types the engine knows about. Anything not in
// the catalog is denied.
type Catalog map[EntityType]EntitySpec

// Lookup returns the EntitySpec registered for t.
func (c Catalog) Lookup(t EntityType) (EntitySpec, bool) {
	s, ok := c[t]
	return s, ok
}

// Identity record fields a resident may change on their own record.
var identityContactFields = []string{"full_name", "email", "phone"}

// DefaultCatalog returns the property-management entity catalog.
func DefaultCatalog() Catalog {
	common := []string{"id", "org_id", "created_at", "updated_at"}
	with := func(fields ...string) []string {
		return append(append([]string{}, common...), fields...)
	}
	specs := []EntitySpec{
		{Type: EntityOrganization, Table: "organizations", OrgField: "id",
			Fields: []string{"id", "name", "settings", "created_at", "updated_at"}},
		{Type: EntityIdentity, Table: "identities", OrgField: "org_id",
			Fields: with("external_id", "full_name", "email", "phone", "role", "metadata")},
		{Type: EntityProperty, Table: "properties", OrgField: "org_id",
			Fields: with("name", "address_line1", "address_line2", "city", "state", "postal_code")},
		{Type: EntityUnit, Table: "units", OrgField: "org_id",
			Fields: with("property_id", "label", "bedrooms", "bathrooms", "market_rent")},
		{Type: EntityLease, Table: "leases", OrgField: "org_id",
			Fields: with("unit_id", "primary_resident_id", "status", "start_date", "end_date", "rent_amount")},
		{Type: EntityLeaseParticipant, Table: "lease_participants", OrgField: "org_id",
			Fields: with("lease_id", "identity_id", "relationship")},
		{Type: EntityLedgerEntry, Table: "ledger_entries", OrgField: "org_id",
			Fields: with("lease_id", "kind", "amount", "memo", "posted_at")},
		{Type: EntityWorkOrder, Table: "work_orders", OrgField: "org_id",
			Fields: with("unit_id", "requested_by", "title", "description", "priority", "status")},
		{Type: EntityNotification, Table: "notifications", OrgField: "org_id",
			Fields: with("identity_id", "title", "body", "read_at")},
	}
	c := make(Catalog, len(specs))
	for _, s := range specs {
		c[s.Type] = s
	}
	return c
}
