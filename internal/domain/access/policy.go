package access

import "github.com/samber/lo"

// Target is the record a write is aimed at. For creates Record is the new
// payload; for updates and deletes it is the stored state and Changes lists
// the fields being written.
type Target struct {
	OrgID   string
	Record  Record
	Changes []string
}

// Decision is the outcome of one authorization check.
type Decision struct {
	Allowed bool
	// Predicate is set on allowed reads and must be ANDed into the query.
	Predicate *Predicate
	// Reason is a short machine-readable explanation for logs.
	Reason string
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

func allow(reason string) Decision {
	return Decision{Allowed: true, Reason: reason}
}

// residentReadRules lists the narrowing applied to resident reads. Entity
// types absent here are visible organization-wide.
var residentReadRules = map[EntityType][]Condition{
	EntityIdentity: {
		{Kind: CallerIdentity, Field: "id"},
	},
	EntityLease: {
		{Kind: CallerIdentity, Field: "primary_resident_id"},
		{Kind: CallerLeaseParticipant, Field: "id"},
	},
	EntityWorkOrder: {
		{Kind: CallerIdentity, Field: "requested_by"},
		{Kind: CallerUnitOccupant, Field: "unit_id"},
	},
	EntityNotification: {
		{Kind: CallerIdentity, Field: "identity_id"},
	},
}

// Engine decides whether a security context may perform an action on an
// entity type. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	catalog Catalog
}

// NewEngine creates an engine over catalog. A nil catalog uses DefaultCatalog.
func NewEngine(catalog Catalog) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Engine{catalog: catalog}
}

// Catalog returns the entity catalog the engine enforces.
func (e *Engine) Catalog() Catalog {
	return e.catalog
}

// HasPermission reports whether sc's role grants p.
func (e *Engine) HasPermission(sc SecurityContext, p Permission) bool {
	return HasPermission(sc, p)
}

// Authorize evaluates action on entity for sc. Reads return a predicate and
// ignore target; writes require target.
func (e *Engine) Authorize(sc SecurityContext, entity EntityType, action Action, target *Target) Decision {
	if sc.IsZero() {
		return deny("no_context")
	}
	spec, ok := e.catalog.Lookup(entity)
	if !ok {
		return deny("unknown_entity")
	}
	if sc.Role() == RoleUnknown || !sc.Role().IsValid() {
		return deny("unknown_role")
	}

	switch action {
	case ActionRead:
		return e.authorizeRead(sc, spec)
	case ActionCreate, ActionUpdate, ActionDelete:
		return e.authorizeWrite(sc, spec, action, target)
	}
	return deny("unknown_action")
}

func (e *Engine) authorizeRead(sc SecurityContext, spec EntitySpec) Decision {
	p := &Predicate{
		Entity:   spec.Type,
		Table:    spec.Table,
		OrgField: spec.OrgField,
		OrgID:    sc.OrgID(),
		CallerID: sc.CallerID(),
	}
	if sc.Role() == RoleResidentOccupant {
		p.AnyOf = append([]Condition(nil), residentReadRules[spec.Type]...)
	}
	d := allow("org_scope")
	if p.Narrowed() {
		d.Reason = "resident_scope"
	}
	d.Predicate = p
	return d
}

func (e *Engine) authorizeWrite(sc SecurityContext, spec EntitySpec, action Action, target *Target) Decision {
	if target == nil {
		return deny("missing_target")
	}
	if target.OrgID == "" || target.OrgID != sc.OrgID() {
		return deny("org_mismatch")
	}
	if action == ActionUpdate && lo.Contains(target.Changes, spec.OrgField) {
		return deny("org_reassignment")
	}
	if action == ActionUpdate && spec.OrgField != "id" && lo.Contains(target.Changes, "id") {
		return deny("id_reassignment")
	}
	if action == ActionUpdate && spec.Type == EntityIdentity && lo.Contains(target.Changes, "external_id") {
		return deny("identity_key_reassignment")
	}

	if sc.Role() == RoleResidentOccupant {
		if spec.Type == EntityIdentity && action == ActionUpdate &&
			target.Record.String("external_id") == sc.CallerID() &&
			len(target.Changes) > 0 &&
			lo.Every(identityContactFields, target.Changes) {
			return allow("own_contact_update")
		}
		return deny("resident_write")
	}

	required := requiredPermission(spec.Type, action, target)
	if !HasPermission(sc, required) {
		return deny("missing_" + string(required))
	}
	if spec.Type == EntityOrganization && action == ActionCreate {
		return deny("organization_create")
	}
	return allow("permission_" + string(required))
}

// requiredPermission maps a write to the matrix permission it needs.
// Organization writes and identity membership or role changes are admin
// operations; everything else needs write.
func requiredPermission(entity EntityType, action Action, target *Target) Permission {
	switch entity {
	case EntityOrganization:
		return PermissionAdmin
	case EntityIdentity:
		if action != ActionUpdate || lo.Contains(target.Changes, "role") {
			return PermissionAdmin
		}
	}
	return PermissionWrite
}
