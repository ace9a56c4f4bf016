package cache

import (
	"context"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	gocache "github.com/patrickmn/go-cache"
)

const inMemoryCleanupInterval = time.Minute

// InMemoryIdempotencyStore remembers processed delivery ids in process memory.
// It is suitable for a single instance and for tests; replicas do not share it.
type InMemoryIdempotencyStore struct {
	entries *gocache.Cache
}

// NewInMemoryIdempotencyStore creates a new in-memory idempotency store
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		entries: gocache.New(shared.DefaultIdempotencyTTL, inMemoryCleanupInterval),
	}
}

// MarkProcessed records eventID for ttl. It returns false when the id is
// already recorded and has not expired.
func (s *InMemoryIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	// Add fails when a live item exists, which is the set-if-absent we need.
	if err := s.entries.Add(eventID, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// IsProcessed reports whether eventID is recorded and not expired.
func (s *InMemoryIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, found := s.entries.Get(eventID)
	return found, nil
}

// Size returns the number of recorded ids, including expired ones not yet cleaned up.
func (s *InMemoryIdempotencyStore) Size() int {
	return s.entries.ItemCount()
}

// Close drops every recorded id.
func (s *InMemoryIdempotencyStore) Close() error {
	s.entries.Flush()
	return nil
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
