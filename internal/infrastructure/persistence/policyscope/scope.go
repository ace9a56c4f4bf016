// Package policyscope translates access predicates into GORM scopes.
//
// The SQL mirrors the row-level security policies in the migrations: the
// caller is resolved through the identities table by external id and
// organization, never by a client-supplied identity id.
//
// Usage:
//
//	d := engine.Authorize(sc, access.EntityLease, access.ActionRead, nil)
//	db.Table("leases").Scopes(policyscope.Scope(*d.Predicate)).Find(&rows)
package policyscope

import (
	"fmt"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const callerIdentities = "SELECT id FROM identities WHERE org_id = ? AND external_id = ?"

// Scope returns a GORM scope applying pred. A predicate without an
// organization matches nothing.
func Scope(pred access.Predicate) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if pred.OrgID == "" || pred.OrgField == "" {
			return db.Where("1 = 0")
		}
		db = db.Where(clause.Expr{
			SQL:  "? = ?",
			Vars: []interface{}{column(pred.OrgField), pred.OrgID},
		})
		if !pred.Narrowed() {
			return db
		}

		exprs := make([]clause.Expression, 0, len(pred.AnyOf))
		for _, c := range pred.AnyOf {
			expr, ok := condition(pred, c)
			if !ok {
				continue
			}
			exprs = append(exprs, expr)
		}
		switch len(exprs) {
		case 0:
			return db.Where("1 = 0")
		case 1:
			// A one-element OR group would be joined to the org clause with OR.
			return db.Where(exprs[0])
		}
		return db.Where(clause.Or(exprs...))
	}
}

func column(name string) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: name}
}

// condition renders one caller condition. Unknown kinds are dropped, and a
// predicate left with no conditions matches nothing.
func condition(pred access.Predicate, c access.Condition) (clause.Expression, bool) {
	col := column(c.Field)
	switch c.Kind {
	case access.CallerIdentity:
		return clause.Expr{
			SQL:  fmt.Sprintf("? IN (%s)", callerIdentities),
			Vars: []interface{}{col, pred.OrgID, pred.CallerID},
		}, true
	case access.CallerLeaseParticipant:
		return clause.Expr{
			SQL:  fmt.Sprintf("? IN (SELECT lease_id FROM lease_participants WHERE org_id = ? AND identity_id IN (%s))", callerIdentities),
			Vars: []interface{}{col, pred.OrgID, pred.OrgID, pred.CallerID},
		}, true
	case access.CallerUnitOccupant:
		return clause.Expr{
			SQL:  fmt.Sprintf("? IN (SELECT unit_id FROM leases WHERE org_id = ? AND primary_resident_id IN (%s))", callerIdentities),
			Vars: []interface{}{col, pred.OrgID, pred.OrgID, pred.CallerID},
		}, true
	}
	return nil, false
}
