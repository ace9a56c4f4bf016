package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"reflect"
	"time"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/persistence/policyscope"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/persistence/session"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxRecordPageSize = 500

// GormRecordStorage is the gateway's storage collaborator over GORM. Every
// read and scoped write carries the policy predicate as SQL, and runs in the
// unit of work's session so row-level security applies as well.
type GormRecordStorage struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormRecordStorage creates a new GormRecordStorage
func NewGormRecordStorage(db *gorm.DB) *GormRecordStorage {
	return &GormRecordStorage{db: db, now: time.Now}
}

// Query reads the rows of entity admitted by pred and filter
func (s *GormRecordStorage) Query(ctx context.Context, entity access.EntitySpec, pred access.Predicate, filter appaccess.Filter) ([]access.Record, error) {
	db := session.DB(ctx, s.db).Table(entity.Table).Scopes(policyscope.Scope(pred))
	db, err := applyFilter(db, entity, filter)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]access.Record, len(rows))
	for i, row := range rows {
		out[i] = normalizeRow(row)
	}
	return out, nil
}

// normalizeRow turns scanned column values into plain values. Drivers report
// columns of types they do not know, such as uuid on SQLite, as pointers or
// byte slices.
func normalizeRow(row map[string]any) access.Record {
	rec := make(access.Record, len(row))
	for column, v := range row {
		rec[column] = normalizeValue(v)
	}
	return rec
}

func normalizeValue(v any) any {
	for v != nil {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer {
			break
		}
		if rv.IsNil() {
			return nil
		}
		v = rv.Elem().Interface()
	}
	switch x := v.(type) {
	case uuid.UUID:
		return x.String()
	case driver.Valuer:
		val, err := x.Value()
		if err != nil {
			return v
		}
		return normalizeValue(val)
	case []byte:
		return string(x)
	case sql.RawBytes:
		return string(x)
	}
	return v
}

// Mutate applies one write. Updates and deletes are scoped by the predicate
// and the record id; a scoped write that touches no row is ErrNotFound.
func (s *GormRecordStorage) Mutate(ctx context.Context, entity access.EntitySpec, action access.Action, scope access.Predicate, payload access.Record) (access.Record, error) {
	db := session.DB(ctx, s.db)
	switch action {
	case access.ActionCreate:
		return s.create(db, entity, payload)
	case access.ActionUpdate:
		return s.update(ctx, db, entity, scope, payload)
	case access.ActionDelete:
		id := payload.String("id")
		result := db.Table(entity.Table).
			Scopes(policyscope.Scope(scope)).
			Where(idEq(id)).
			Delete(map[string]any{})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, shared.ErrNotFound
		}
		return access.Record{"id": id}, nil
	}
	return nil, shared.ErrInvalidInput.WithDetail("action", string(action))
}

func (s *GormRecordStorage) create(db *gorm.DB, entity access.EntitySpec, payload access.Record) (access.Record, error) {
	row := payload.Clone()
	if row.String("id") == "" {
		row["id"] = uuid.NewString()
	}
	now := s.now()
	for _, field := range []string{"created_at", "updated_at"} {
		if _, set := row[field]; !set && entity.HasField(field) {
			row[field] = now
		}
	}
	if err := db.Table(entity.Table).Create(map[string]any(row)).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, shared.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return nil, shared.ErrInvalidInput.WithDetail("reason", "referenced record does not exist")
		}
		return nil, err
	}
	return row, nil
}

func (s *GormRecordStorage) update(ctx context.Context, db *gorm.DB, entity access.EntitySpec, scope access.Predicate, payload access.Record) (access.Record, error) {
	id := payload.String("id")
	changes := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != "id" {
			changes[k] = v
		}
	}
	if entity.HasField("updated_at") {
		changes["updated_at"] = s.now()
	}
	result := db.Table(entity.Table).
		Scopes(policyscope.Scope(scope)).
		Where(idEq(id)).
		Updates(changes)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return nil, shared.ErrAlreadyExists
		}
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, shared.ErrNotFound
	}

	rows, err := s.Query(ctx, entity, scope, appaccess.Filter{ID: id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// The update moved the row out of the caller's scope.
		return access.Record{"id": id}, nil
	}
	return rows[0], nil
}

// applyFilter adds filter to db. Only catalogued columns are accepted.
func applyFilter(db *gorm.DB, entity access.EntitySpec, filter appaccess.Filter) (*gorm.DB, error) {
	if filter.ID != "" {
		db = db.Where(idEq(filter.ID))
	}
	for field, value := range filter.Equals {
		if !entity.HasField(field) {
			return nil, shared.ErrInvalidInput.WithDetail("field", field)
		}
		db = db.Where(clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: field}, Value: value})
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	if !entity.HasField(orderBy) {
		return nil, shared.ErrInvalidInput.WithDetail("order_by", orderBy)
	}
	db = db.Order(clause.OrderByColumn{
		Column: clause.Column{Table: clause.CurrentTable, Name: orderBy},
		Desc:   filter.Desc,
	})

	limit := filter.Limit
	if limit <= 0 || limit > maxRecordPageSize {
		limit = maxRecordPageSize
	}
	db = db.Limit(limit)
	if filter.Offset > 0 {
		db = db.Offset(filter.Offset)
	}
	return db, nil
}

func idEq(id string) clause.Eq {
	return clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: "id"}, Value: id}
}

var _ appaccess.Storage = (*GormRecordStorage)(nil)
