package shared

import (
	"context"
	"time"
)

// DefaultIdempotencyTTL is how long a webhook delivery id is remembered when
// nothing else is configured. Providers stop retrying well before it expires.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore remembers which webhook deliveries were already applied,
// so a redelivery is acknowledged without running its handler again.
type IdempotencyStore interface {
	// MarkProcessed records eventID for ttl. It reports false when the id
	// was already recorded.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	Close() error
}
