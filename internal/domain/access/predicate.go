package access

import "github.com/samber/lo"

// ConditionKind identifies how a record field relates to the caller.
type ConditionKind int

const (
	// CallerIdentity holds when the field is the id of one of the caller's
	// identities in the organization.
	CallerIdentity ConditionKind = iota + 1
	// CallerLeaseParticipant holds when the field is a lease the caller is
	// listed on as a participant.
	CallerLeaseParticipant
	// CallerUnitOccupant holds when the field is a unit with a lease whose
	// primary resident is the caller.
	CallerUnitOccupant
)

func (k ConditionKind) String() string {
	switch k {
	case CallerIdentity:
		return "caller_identity"
	case CallerLeaseParticipant:
		return "caller_lease_participant"
	case CallerUnitOccupant:
		return "caller_unit_occupant"
	}
	return "unknown"
}

// Condition narrows a read to records related to the caller through Field.
type Condition struct {
	Kind  ConditionKind
	Field string
}

// Predicate is the row filter attached to an allowed read. A record passes
// when its organization field equals OrgID and, if AnyOf is non-empty, at
// least one condition holds.
type Predicate struct {
	Entity   EntityType
	Table    string
	OrgField string
	OrgID    string
	CallerID string
	AnyOf    []Condition
}

// Narrowed reports whether the predicate restricts beyond the organization.
func (p Predicate) Narrowed() bool {
	return len(p.AnyOf) > 0
}

// Facts answers the relationship questions a predicate needs when it is
// evaluated outside the database.
type Facts interface {
	// CallerIdentityIDs returns the identity ids held by callerID in orgID.
	CallerIdentityIDs(orgID, callerID string) []string
	// LeaseParticipantIDs returns the identity ids listed on the lease.
	LeaseParticipantIDs(orgID, leaseID string) []string
	// UnitOccupantIDs returns the primary resident ids of leases on the unit.
	UnitOccupantIDs(orgID, unitID string) []string
}

// MatchesOrg applies only the organization clause.
func (p Predicate) MatchesOrg(r Record) bool {
	return p.OrgID != "" && r.String(p.OrgField) == p.OrgID
}

// Matches evaluates the predicate against r.
func (p Predicate) Matches(r Record, facts Facts) bool {
	if !p.MatchesOrg(r) {
		return false
	}
	if !p.Narrowed() {
		return true
	}
	if facts == nil {
		return false
	}
	caller := facts.CallerIdentityIDs(p.OrgID, p.CallerID)
	if len(caller) == 0 {
		return false
	}
	return lo.SomeBy(p.AnyOf, func(c Condition) bool {
		v := r.String(c.Field)
		if v == "" {
			return false
		}
		switch c.Kind {
		case CallerIdentity:
			return lo.Contains(caller, v)
		case CallerLeaseParticipant:
			return lo.Some(facts.LeaseParticipantIDs(p.OrgID, v), caller)
		case CallerUnitOccupant:
			return lo.Some(facts.UnitOccupantIDs(p.OrgID, v), caller)
		}
		return false
	})
}
