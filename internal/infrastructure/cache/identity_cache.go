package cache

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultIdentityCacheSize = 4096
	defaultIdentityCacheTTL  = 5 * time.Minute
	keySep                   = "\x00"
)

// IdentityCache is a bounded, expiring cache of resolved identities keyed by
// (organization id, external caller id). It subscribes to identity and
// organization events so role changes and removals are not served stale.
type IdentityCache struct {
	lru *expirable.LRU[string, *identity.Identity]

	mu         sync.Mutex
	generation uint64
}

// NewIdentityCache creates a cache holding at most size entries for ttl.
// Non-positive values fall back to the defaults.
func NewIdentityCache(size int, ttl time.Duration) *IdentityCache {
	if size <= 0 {
		size = defaultIdentityCacheSize
	}
	if ttl <= 0 {
		ttl = defaultIdentityCacheTTL
	}
	return &IdentityCache{lru: expirable.NewLRU[string, *identity.Identity](size, nil, ttl)}
}

func identityKey(orgID, externalID string) string {
	return orgID + keySep + externalID
}

// Get returns a copy of the cached identity.
func (c *IdentityCache) Get(orgID, externalID string) (*identity.Identity, bool) {
	ident, ok := c.lru.Get(identityKey(orgID, externalID))
	if !ok {
		return nil, false
	}
	cp := *ident
	cp.Metadata = maps.Clone(ident.Metadata)
	return &cp, true
}

// Add stores a copy of ident.
func (c *IdentityCache) Add(ident *identity.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(ident)
}

// Generation counts invalidations. Read it before loading an identity and
// pass it to AddIfCurrent.
func (c *IdentityCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// AddIfCurrent stores a copy of ident unless an invalidation happened after
// generation was read. It reports whether ident was stored.
func (c *IdentityCache) AddIfCurrent(ident *identity.Identity, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	return c.add(ident)
}

func (c *IdentityCache) add(ident *identity.Identity) bool {
	if ident == nil || ident.OrgID == "" || ident.ExternalID == "" {
		return false
	}
	cp := *ident
	cp.Metadata = maps.Clone(ident.Metadata)
	cp.ClearDomainEvents()
	c.lru.Add(identityKey(ident.OrgID, ident.ExternalID), &cp)
	return true
}

// Invalidate drops one entry.
func (c *IdentityCache) Invalidate(orgID, externalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.lru.Remove(identityKey(orgID, externalID))
}

// InvalidateExternal drops every entry of an external user, in all organizations.
func (c *IdentityCache) InvalidateExternal(externalID string) int {
	return c.removeWhere(func(_, ext string) bool { return ext == externalID })
}

// InvalidateOrg drops every entry of an organization.
func (c *IdentityCache) InvalidateOrg(orgID string) int {
	return c.removeWhere(func(org, _ string) bool { return org == orgID })
}

// Len returns the number of live entries.
func (c *IdentityCache) Len() int {
	return c.lru.Len()
}

func (c *IdentityCache) removeWhere(match func(orgID, externalID string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	n := 0
	for _, key := range c.lru.Keys() {
		org, ext, ok := strings.Cut(key, keySep)
		if ok && match(org, ext) {
			if c.lru.Remove(key) {
				n++
			}
		}
	}
	return n
}

// EventTypes implements shared.EventHandler.
func (c *IdentityCache) EventTypes() []string {
	return []string{
		identity.EventTypeIdentityUpdated,
		identity.EventTypeIdentityRemoved,
		identity.EventTypeOrganizationRemoved,
	}
}

// Handle implements shared.EventHandler.
func (c *IdentityCache) Handle(_ context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *identity.IdentityUpdatedEvent:
		c.Invalidate(e.OrgID(), e.ExternalID)
	case *identity.IdentityRemovedEvent:
		if e.OrgID() == "" {
			c.InvalidateExternal(e.ExternalID)
		} else {
			c.Invalidate(e.OrgID(), e.ExternalID)
		}
	case *identity.OrganizationRemovedEvent:
		c.InvalidateOrg(e.OrgID())
	}
	return nil
}

var _ shared.EventHandler = (*IdentityCache)(nil)
