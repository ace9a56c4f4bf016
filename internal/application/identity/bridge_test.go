package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newMemoryBridge(repos *memoryRepos, events *recordingPublisher) *Bridge {
	cfg := BridgeConfig{
		Organizations: memoryOrgs{repos},
		Identities:    memoryIdentities{repos},
	}
	if events != nil {
		cfg.Events = events
	}
	return NewBridge(cfg)
}

func TestBridge_Resolve_NoOrganization(t *testing.T) {
	b := newMemoryBridge(newMemoryRepos(), nil)

	res, err := b.Resolve(context.Background(), "user_1", "", identity.Profile{})

	require.NoError(t, err)
	assert.True(t, res.NoOrganization)
	assert.Nil(t, res.Identity)
	_, err = res.SecurityContext()
	assert.True(t, errors.Is(err, shared.ErrNoOrganization))
}

func TestBridge_Resolve_MissingCaller(t *testing.T) {
	b := newMemoryBridge(newMemoryRepos(), nil)

	_, err := b.Resolve(context.Background(), "  ", "org_1", identity.Profile{})

	assert.True(t, errors.Is(err, shared.ErrInvalidContext))
}

func TestBridge_Resolve_FirstSight(t *testing.T) {
	repos := newMemoryRepos()
	events := &recordingPublisher{}
	b := newMemoryBridge(repos, events)

	res, err := b.Resolve(context.Background(), "user_1", "org_1", identity.Profile{Email: "Ana@Example.com", FirstName: "Ana"})

	require.NoError(t, err)
	require.NotNil(t, res.Identity)
	assert.True(t, res.Created)
	assert.Equal(t, access.RoleResidentOccupant, res.Identity.Role)
	assert.Equal(t, "ana@example.com", res.Identity.Email)

	sc, err := res.SecurityContext()
	require.NoError(t, err)
	assert.Equal(t, "org_1", sc.OrgID())
	assert.Equal(t, "user_1", sc.CallerID())

	org := repos.orgs["org_1"]
	require.NotNil(t, org)
	assert.Equal(t, "America/New_York", org.Settings.Timezone)
	assert.Equal(t, []string{identity.EventTypeOrganizationCreated, identity.EventTypeIdentityCreated}, events.types())
}

func TestBridge_Resolve_ExistingIdentityUnchanged(t *testing.T) {
	repos := newMemoryRepos()
	b := newMemoryBridge(repos, nil)
	ctx := context.Background()

	first, err := b.Resolve(ctx, "user_1", "org_1", identity.Profile{Phone: "111"})
	require.NoError(t, err)

	second, err := b.Resolve(ctx, "user_1", "org_1", identity.Profile{Phone: "222"})
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Identity.ID, second.Identity.ID)
	assert.Equal(t, "111", second.Identity.Phone)
	assert.Equal(t, 1, repos.creates)
}

func TestBridge_Resolve_RunsBoundToOrganization(t *testing.T) {
	orgs := &MockOrganizationRepository{}
	idents := &MockIdentityRepository{}
	existing, err := identity.NewIdentity("org_1", "user_1", access.RoleManager, identity.Profile{})
	require.NoError(t, err)

	bound := func(ctx context.Context) bool {
		sc, ok := appaccess.Current(ctx)
		return ok && sc.OrgID() == "org_1" && sc.Role() == access.RoleUnknown
	}
	org, _ := identity.NewOrganization("org_1", "", identity.DefaultOrganizationSettings())
	orgs.On("FindByID", mock.MatchedBy(bound), "org_1").Return(org, nil)
	idents.On("FindByExternalID", mock.MatchedBy(bound), "org_1", "user_1").Return(existing, nil)

	b := NewBridge(BridgeConfig{Organizations: orgs, Identities: idents})
	res, err := b.Resolve(context.Background(), "user_1", "org_1", identity.Profile{})

	require.NoError(t, err)
	assert.Equal(t, access.RoleManager, res.Identity.Role)
	orgs.AssertExpectations(t)
	idents.AssertExpectations(t)
	idents.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything)
}

func TestBridge_Resolve_LostRaceRelooksUpOnce(t *testing.T) {
	org, _ := identity.NewOrganization("org_1", "", identity.DefaultOrganizationSettings())
	winner, _ := identity.NewIdentity("org_1", "user_1", access.RoleResidentOccupant, identity.Profile{})

	t.Run("returns the winner", func(t *testing.T) {
		orgs := &MockOrganizationRepository{}
		idents := &MockIdentityRepository{}
		orgs.On("FindByID", mock.Anything, "org_1").Return(org, nil)
		idents.On("FindByExternalID", mock.Anything, "org_1", "user_1").Return(nil, shared.ErrNotFound).Once()
		idents.On("CreateIfAbsent", mock.Anything, mock.Anything).Return(false, nil).Once()
		idents.On("FindByExternalID", mock.Anything, "org_1", "user_1").Return(winner, nil).Once()

		b := NewBridge(BridgeConfig{Organizations: orgs, Identities: idents})
		res, err := b.Resolve(context.Background(), "user_1", "org_1", identity.Profile{})

		require.NoError(t, err)
		assert.Equal(t, winner.ID, res.Identity.ID)
		assert.False(t, res.Created)
		idents.AssertNumberOfCalls(t, "FindByExternalID", 2)
	})

	t.Run("relookup miss is a duplicate identity", func(t *testing.T) {
		orgs := &MockOrganizationRepository{}
		idents := &MockIdentityRepository{}
		orgs.On("FindByID", mock.Anything, "org_1").Return(org, nil)
		idents.On("FindByExternalID", mock.Anything, "org_1", "user_1").Return(nil, shared.ErrNotFound)
		idents.On("CreateIfAbsent", mock.Anything, mock.Anything).Return(false, nil).Once()

		b := NewBridge(BridgeConfig{Organizations: orgs, Identities: idents})
		_, err := b.Resolve(context.Background(), "user_1", "org_1", identity.Profile{})

		assert.True(t, errors.Is(err, shared.ErrDuplicateIdentity))
		idents.AssertNumberOfCalls(t, "FindByExternalID", 2)
		idents.AssertNumberOfCalls(t, "CreateIfAbsent", 1)
	})

	t.Run("storage errors pass through", func(t *testing.T) {
		orgs := &MockOrganizationRepository{}
		idents := &MockIdentityRepository{}
		storageErr := errors.New("connection refused")
		orgs.On("FindByID", mock.Anything, "org_1").Return(nil, storageErr)

		b := NewBridge(BridgeConfig{Organizations: orgs, Identities: idents})
		_, err := b.Resolve(context.Background(), "user_1", "org_1", identity.Profile{})

		assert.Equal(t, storageErr, err)
	})
}

func TestBridge_Resolve_ConcurrentFirstRequests(t *testing.T) {
	repos := newMemoryRepos()
	b := newMemoryBridge(repos, nil)

	const n = 32
	var (
		mu  sync.Mutex
		ids = map[string]struct{}{}
	)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			res, err := b.Resolve(context.Background(), "user_1", "org_1", identity.Profile{})
			if err != nil {
				return err
			}
			mu.Lock()
			ids[res.Identity.ID.String()] = struct{}{}
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Len(t, ids, 1)
	assert.Equal(t, 1, repos.creates)
}

func TestBridge_ProvisionOrganizationCreator(t *testing.T) {
	t.Run("creates organization and owner", func(t *testing.T) {
		repos := newMemoryRepos()
		b := newMemoryBridge(repos, nil)

		res, err := b.ProvisionOrganizationCreator(context.Background(), "org_9", "user_9", OrganizationProfile{Name: "Harbor Homes"})

		require.NoError(t, err)
		assert.Equal(t, access.RoleOwnerAdmin, res.Identity.Role)
		assert.Equal(t, "Harbor Homes", repos.orgs["org_9"].Name)
	})

	t.Run("is idempotent and promotes an existing member", func(t *testing.T) {
		repos := newMemoryRepos()
		b := newMemoryBridge(repos, nil)
		ctx := context.Background()

		_, err := b.Resolve(ctx, "user_9", "org_9", identity.Profile{})
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			res, err := b.ProvisionOrganizationCreator(ctx, "org_9", "user_9", OrganizationProfile{Name: "Harbor Homes"})
			require.NoError(t, err)
			assert.False(t, res.Created)
			assert.Equal(t, access.RoleOwnerAdmin, res.Identity.Role)
		}
		assert.Equal(t, 1, repos.creates)
	})

	t.Run("requires organization and creator", func(t *testing.T) {
		b := newMemoryBridge(newMemoryRepos(), nil)
		_, err := b.ProvisionOrganizationCreator(context.Background(), "org_9", "", OrganizationProfile{})
		assert.True(t, errors.Is(err, shared.ErrInvalidContext))
	})
}

func TestBridge_Resolve_InsideConflictingUnitOfWork(t *testing.T) {
	b := newMemoryBridge(newMemoryRepos(), nil)
	p := appaccess.NewPropagator(nil, nil)

	err := p.RunWith(context.Background(), access.MustSecurityContext("org_1", "user_1", access.RoleManager), func(ctx context.Context) error {
		_, err := b.Resolve(ctx, "user_2", "org_2", identity.Profile{})
		return err
	})

	assert.True(t, errors.Is(err, shared.ErrContextConflict))
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[[2]string]*identity.Identity
	invalidated [][2]string
	generation  uint64
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[[2]string]*identity.Identity{}}
}

func (c *fakeCache) Get(orgID, externalID string) (*identity.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ident, ok := c.entries[[2]string{orgID, externalID}]
	return ident, ok
}

func (c *fakeCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *fakeCache) AddIfCurrent(ident *identity.Identity, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	c.entries[[2]string{ident.OrgID, ident.ExternalID}] = ident
	return true
}

func (c *fakeCache) Invalidate(orgID, externalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.invalidated = append(c.invalidated, [2]string{orgID, externalID})
	delete(c.entries, [2]string{orgID, externalID})
}

func TestBridge_RecordWritten(t *testing.T) {
	newBridge := func() (*Bridge, *fakeCache, *recordingPublisher) {
		c := newFakeCache()
		events := &recordingPublisher{}
		b := NewBridge(BridgeConfig{
			Organizations: memoryOrgs{newMemoryRepos()},
			Identities:    memoryIdentities{newMemoryRepos()},
			Cache:         c,
			Events:        events,
		})
		return b, c, events
	}
	ctx := context.Background()

	t.Run("role change evicts and publishes an update", func(t *testing.T) {
		b, c, events := newBridge()
		b.RecordWritten(ctx, appaccess.Write{
			Entity: access.EntityIdentity,
			Action: access.ActionUpdate,
			Before: access.Record{"id": "id-d", "org_id": "o1", "external_id": "ext-d", "role": "manager"},
			After:  access.Record{"id": "id-d", "org_id": "o1", "external_id": "ext-d", "role": "resident_occupant"},
		})

		assert.Equal(t, [][2]string{{"o1", "ext-d"}}, c.invalidated)
		require.Len(t, events.events, 1)
		updated, ok := events.events[0].(*identity.IdentityUpdatedEvent)
		require.True(t, ok)
		assert.Equal(t, "o1", updated.OrgID())
		assert.Equal(t, "ext-d", updated.ExternalID)
		assert.Equal(t, "resident_occupant", updated.Role)
	})

	t.Run("external id change evicts both keys", func(t *testing.T) {
		b, c, events := newBridge()
		b.RecordWritten(ctx, appaccess.Write{
			Entity: access.EntityIdentity,
			Action: access.ActionUpdate,
			Before: access.Record{"id": "id-d", "org_id": "o1", "external_id": "ext-old"},
			After:  access.Record{"id": "id-d", "org_id": "o1", "external_id": "ext-new"},
		})

		assert.ElementsMatch(t, [][2]string{{"o1", "ext-old"}, {"o1", "ext-new"}}, c.invalidated)
		assert.Equal(t, []string{identity.EventTypeIdentityRemoved, identity.EventTypeIdentityUpdated}, events.types())
	})

	t.Run("delete evicts and publishes a removal", func(t *testing.T) {
		b, c, events := newBridge()
		b.RecordWritten(ctx, appaccess.Write{
			Entity: access.EntityIdentity,
			Action: access.ActionDelete,
			Before: access.Record{"id": "id-d", "org_id": "o1", "external_id": "ext-d"},
		})

		assert.Equal(t, [][2]string{{"o1", "ext-d"}}, c.invalidated)
		assert.Equal(t, []string{identity.EventTypeIdentityRemoved}, events.types())
	})

	t.Run("other entities are ignored", func(t *testing.T) {
		b, c, events := newBridge()
		b.RecordWritten(ctx, appaccess.Write{
			Entity: access.EntityWorkOrder,
			Action: access.ActionDelete,
			Before: access.Record{"id": "wo-1", "org_id": "o1"},
		})

		assert.Empty(t, c.invalidated)
		assert.Empty(t, events.types())
	})

	t.Run("an eviction during resolve keeps the stale identity out", func(t *testing.T) {
		repos := newMemoryRepos()
		c := newFakeCache()
		b := NewBridge(BridgeConfig{
			Organizations: memoryOrgs{repos},
			Identities:    evictingIdentities{memoryIdentities{repos}, c},
			Cache:         c,
		})

		res, err := b.Resolve(ctx, "user_1", "org_1", identity.Profile{})
		require.NoError(t, err)
		require.NotNil(t, res.Identity)
		_, cached := c.Get("org_1", "user_1")
		assert.False(t, cached)
	})
}

// evictingIdentities invalidates the cache on every lookup, standing in for a
// role change that commits while a resolve is in flight.
type evictingIdentities struct {
	memoryIdentities
	cache *fakeCache
}

func (e evictingIdentities) FindByExternalID(ctx context.Context, orgID, externalID string) (*identity.Identity, error) {
	e.cache.Invalidate(orgID, externalID)
	return e.memoryIdentities.FindByExternalID(ctx, orgID, externalID)
}
