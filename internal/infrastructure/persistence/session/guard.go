package session

import (
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Guard installs GORM callbacks on the tenant tables. A statement against a
// guarded table outside a session fails with ErrNoSession; inside a bound
// session every statement gets "<table>.<org column> = <session org>" ANDed
// into its WHERE, even when the caller already filters on that column.
type Guard struct {
	// tables maps table name to its organization column.
	tables map[string]string
}

// NewGuard creates a guard for tables (table name -> organization column).
func NewGuard(tables map[string]string) *Guard {
	cp := make(map[string]string, len(tables))
	for t, c := range tables {
		cp[t] = c
	}
	return &Guard{tables: cp}
}

// CatalogTables maps every catalogued table to its organization column.
func CatalogTables(c access.Catalog) map[string]string {
	out := make(map[string]string, len(c))
	for _, spec := range c {
		out[spec.Table] = spec.OrgField
	}
	return out
}

// Register installs the callbacks on db.
func (g *Guard) Register(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Query().Before("gorm:query").Register("session:before_query", g.scope); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("session:before_row", g.scope); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("session:before_update", g.scope); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("session:before_delete", g.scope); err != nil {
		return err
	}
	return cb.Create().Before("gorm:create").Register("session:before_create", g.require)
}

// Unregister removes the callbacks. Intended for tests.
func (g *Guard) Unregister(db *gorm.DB) {
	cb := db.Callback()
	_ = cb.Query().Remove("session:before_query")
	_ = cb.Row().Remove("session:before_row")
	_ = cb.Update().Remove("session:before_update")
	_ = cb.Delete().Remove("session:before_delete")
	_ = cb.Create().Remove("session:before_create")
}

func (g *Guard) column(db *gorm.DB) (string, bool) {
	col, ok := g.tables[db.Statement.Table]
	return col, ok
}

// require rejects statements on guarded tables issued outside a session.
func (g *Guard) require(db *gorm.DB) {
	if _, guarded := g.column(db); !guarded || db.Statement.Context == nil {
		return
	}
	if !hasSession(db.Statement.Context) {
		_ = db.AddError(ErrNoSession)
	}
}

// scope rejects sessionless statements and pins bound sessions to their org.
func (g *Guard) scope(db *gorm.DB) {
	col, guarded := g.column(db)
	if !guarded || db.Statement.Context == nil {
		return
	}
	ctx := db.Statement.Context
	if !hasSession(ctx) {
		_ = db.AddError(ErrNoSession)
		return
	}
	orgID, bound := OrgID(ctx)
	if !bound {
		return
	}
	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: clause.CurrentTable, Name: col},
				Value:  orgID,
			},
		},
	})
}
