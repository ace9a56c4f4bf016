// Package memory provides an in-process storage collaborator for the access
// gateway. It has no native row security; the predicate it receives is the
// only filter applied.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Store keeps records per entity type in memory.
type Store struct {
	mu     sync.RWMutex
	tables map[access.EntityType][]access.Record
	now    func() time.Time
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		tables: make(map[access.EntityType][]access.Record),
		now:    time.Now,
	}
}

// Seed inserts records without any authorization. Intended for fixtures.
func (s *Store) Seed(entity access.EntityType, records ...access.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.tables[entity] = append(s.tables[entity], r.Clone())
	}
}

// Len returns the number of stored records of entity.
func (s *Store) Len(entity access.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[entity])
}

// Query implements appaccess.Storage
func (s *Store) Query(ctx context.Context, spec access.EntitySpec, pred access.Predicate, filter appaccess.Filter) ([]access.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	facts := view{tables: s.tables}
	rows := lo.Filter(s.tables[spec.Type], func(r access.Record, _ int) bool {
		if !pred.Matches(r, facts) {
			return false
		}
		if filter.ID != "" && r.String("id") != filter.ID {
			return false
		}
		for k, v := range filter.Equals {
			if r.String(k) != (access.Record{k: v}).String(k) {
				return false
			}
		}
		return true
	})

	if filter.OrderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i].String(filter.OrderBy), rows[j].String(filter.OrderBy)
			if filter.Desc {
				return a > b
			}
			return a < b
		})
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(rows) {
			return []access.Record{}, nil
		}
		rows = rows[filter.Offset:]
	}
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return lo.Map(rows, func(r access.Record, _ int) access.Record { return r.Clone() }), nil
}

// Mutate implements appaccess.Storage
func (s *Store) Mutate(ctx context.Context, spec access.EntitySpec, action access.Action, scope access.Predicate, payload access.Record) (access.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	switch action {
	case access.ActionCreate:
		rec := payload.Clone()
		if rec.String("id") == "" {
			rec["id"] = uuid.NewString()
		}
		if _, _, exists := s.find(spec.Type, rec.String("id")); exists {
			return nil, shared.ErrAlreadyExists
		}
		rec["created_at"] = now
		rec["updated_at"] = now
		s.tables[spec.Type] = append(s.tables[spec.Type], rec)
		return rec.Clone(), nil

	case access.ActionUpdate, access.ActionDelete:
		idx, rec, ok := s.find(spec.Type, payload.String("id"))
		if !ok || !scope.Matches(rec, view{tables: s.tables}) {
			return nil, shared.ErrNotFound
		}
		if action == access.ActionDelete {
			rows := s.tables[spec.Type]
			s.tables[spec.Type] = append(rows[:idx:idx], rows[idx+1:]...)
			return rec.Clone(), nil
		}
		updated := rec.Clone()
		for k, v := range payload {
			if k == "id" {
				continue
			}
			updated[k] = v
		}
		updated["updated_at"] = now
		s.tables[spec.Type][idx] = updated
		return updated.Clone(), nil
	}
	return nil, shared.ErrInvalidInput.WithDetail("action", string(action))
}

func (s *Store) find(entity access.EntityType, id string) (int, access.Record, bool) {
	for i, r := range s.tables[entity] {
		if r.String("id") == id {
			return i, r, true
		}
	}
	return -1, nil, false
}

// CallerIdentityIDs implements access.Facts
func (s *Store) CallerIdentityIDs(orgID, callerID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{tables: s.tables}.CallerIdentityIDs(orgID, callerID)
}

// LeaseParticipantIDs implements access.Facts
func (s *Store) LeaseParticipantIDs(orgID, leaseID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{tables: s.tables}.LeaseParticipantIDs(orgID, leaseID)
}

// UnitOccupantIDs implements access.Facts
func (s *Store) UnitOccupantIDs(orgID, unitID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{tables: s.tables}.UnitOccupantIDs(orgID, unitID)
}

// view answers relationship questions over tables; callers hold the lock.
type view struct {
	tables map[access.EntityType][]access.Record
}

func (v view) pluck(entity access.EntityType, orgID, matchField, matchValue, field string) []string {
	var out []string
	for _, r := range v.tables[entity] {
		if r.String("org_id") == orgID && r.String(matchField) == matchValue {
			out = append(out, r.String(field))
		}
	}
	return out
}

func (v view) CallerIdentityIDs(orgID, callerID string) []string {
	return v.pluck(access.EntityIdentity, orgID, "external_id", callerID, "id")
}

func (v view) LeaseParticipantIDs(orgID, leaseID string) []string {
	return v.pluck(access.EntityLeaseParticipant, orgID, "lease_id", leaseID, "identity_id")
}

func (v view) UnitOccupantIDs(orgID, unitID string) []string {
	return v.pluck(access.EntityLease, orgID, "unit_id", unitID, "primary_resident_id")
}

var (
	_ appaccess.Storage = (*Store)(nil)
	_ access.Facts      = (*Store)(nil)
)
