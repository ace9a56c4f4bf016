package identity

import (
	"context"
	"errors"
	"testing"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAs(t *testing.T, orgID, callerID string, role access.Role, fn func(ctx context.Context) error) error {
	t.Helper()
	return appaccess.NewPropagator(nil, nil).RunWith(context.Background(), access.MustSecurityContext(orgID, callerID, role), fn)
}

func TestBridge_AddMember(t *testing.T) {
	t.Run("requires a bound context", func(t *testing.T) {
		b := newMemoryBridge(newMemoryRepos(), nil)
		_, err := b.AddMember(context.Background(), "user_2", access.RoleLeasingStaff, identity.Profile{})
		assert.True(t, errors.Is(err, shared.ErrMissingContext))
	})

	t.Run("denies non-admins", func(t *testing.T) {
		b := newMemoryBridge(newMemoryRepos(), nil)
		err := runAs(t, "org_1", "user_1", access.RoleManager, func(ctx context.Context) error {
			_, err := b.AddMember(ctx, "user_2", access.RoleLeasingStaff, identity.Profile{})
			return err
		})
		assert.True(t, errors.Is(err, shared.ErrAccessDenied))
	})

	t.Run("admin adds and re-roles members", func(t *testing.T) {
		repos := newMemoryRepos()
		b := newMemoryBridge(repos, nil)

		err := runAs(t, "org_1", "user_1", access.RoleOwnerAdmin, func(ctx context.Context) error {
			added, err := b.AddMember(ctx, "user_2", access.RoleLeasingStaff, identity.Profile{Email: "lee@example.com"})
			if err != nil {
				return err
			}
			assert.Equal(t, access.RoleLeasingStaff, added.Role)

			changed, err := b.AddMember(ctx, "user_2", access.RoleManager, identity.Profile{})
			if err != nil {
				return err
			}
			assert.Equal(t, added.ID, changed.ID)
			assert.Equal(t, access.RoleManager, changed.Role)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, access.RoleManager, repos.identities[[2]string{"org_1", "user_2"}].Role)
	})

	t.Run("rejects unknown roles", func(t *testing.T) {
		b := newMemoryBridge(newMemoryRepos(), nil)
		err := runAs(t, "org_1", "user_1", access.RoleOwnerAdmin, func(ctx context.Context) error {
			_, err := b.AddMember(ctx, "user_2", access.Role("superuser"), identity.Profile{})
			return err
		})
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})
}

func TestBridge_RemoveMember(t *testing.T) {
	repos := newMemoryRepos()
	events := &recordingPublisher{}
	b := newMemoryBridge(repos, events)
	_, err := b.GrantMembership(context.Background(), "org_1", "user_2", access.RoleResidentOccupant, identity.Profile{})
	require.NoError(t, err)

	err = runAs(t, "org_1", "user_1", access.RoleOwnerAdmin, func(ctx context.Context) error {
		if err := b.RemoveMember(ctx, "user_2"); err != nil {
			return err
		}
		assert.True(t, errors.Is(b.RemoveMember(ctx, "user_2"), shared.ErrNotFound))
		assert.True(t, errors.Is(b.RemoveMember(ctx, "user_1"), shared.ErrInvalidInput))
		return nil
	})

	require.NoError(t, err)
	assert.Contains(t, events.types(), identity.EventTypeIdentityRemoved)
}

func TestBridge_MembershipEventsWaitForCommit(t *testing.T) {
	t.Run("published when the unit of work completes", func(t *testing.T) {
		repos := newMemoryRepos()
		events := &recordingPublisher{}
		b := newMemoryBridge(repos, events)

		err := runAs(t, "org_1", "user_1", access.RoleOwnerAdmin, func(ctx context.Context) error {
			if _, err := b.AddMember(ctx, "user_2", access.RoleLeasingStaff, identity.Profile{}); err != nil {
				return err
			}
			if err := b.RemoveMember(ctx, "user_2"); err != nil {
				return err
			}
			assert.Empty(t, events.types())
			return nil
		})

		require.NoError(t, err)
		assert.Contains(t, events.types(), identity.EventTypeIdentityRemoved)
	})

	t.Run("dropped when the unit of work fails", func(t *testing.T) {
		repos := newMemoryRepos()
		events := &recordingPublisher{}
		b := newMemoryBridge(repos, events)

		err := runAs(t, "org_1", "user_1", access.RoleOwnerAdmin, func(ctx context.Context) error {
			if _, err := b.AddMember(ctx, "user_2", access.RoleLeasingStaff, identity.Profile{}); err != nil {
				return err
			}
			return errors.New("later step failed")
		})

		require.Error(t, err)
		assert.Empty(t, events.types())
	})
}

func TestBridge_ListMembers(t *testing.T) {
	repos := newMemoryRepos()
	b := newMemoryBridge(repos, nil)
	b.gateway = appaccess.NewGateway(appaccess.GatewayConfig{Storage: &listStorage{}})

	err := runAs(t, "org_1", "user_1", access.RoleOwnerAdmin, func(ctx context.Context) error {
		rows, err := b.ListMembers(ctx)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
		return nil
	})
	require.NoError(t, err)

	_, err = b.ListMembers(context.Background())
	assert.True(t, errors.Is(err, shared.ErrMissingContext))
}

type listStorage struct{}

func (listStorage) Query(_ context.Context, _ access.EntitySpec, pred access.Predicate, filter appaccess.Filter) ([]access.Record, error) {
	if filter.OrderBy != "created_at" {
		return nil, errors.New("members must be ordered by creation")
	}
	return []access.Record{{"id": "i-1", "org_id": pred.OrgID}}, nil
}

func (listStorage) Mutate(context.Context, access.EntitySpec, access.Action, access.Predicate, access.Record) (access.Record, error) {
	return nil, errors.New("read only")
}

func TestBridge_SyncProfileAndRemoveUser(t *testing.T) {
	repos := newMemoryRepos()
	b := newMemoryBridge(repos, nil)
	ctx := context.Background()

	for _, org := range []string{"org_1", "org_2"} {
		_, err := b.GrantMembership(ctx, org, "user_1", access.RoleResidentOccupant, identity.Profile{Phone: "old"})
		require.NoError(t, err)
	}

	n, err := b.SyncProfile(ctx, "user_1", identity.Profile{Phone: "new", FirstName: "Kim"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, org := range []string{"org_1", "org_2"} {
		ident := repos.identities[[2]string{org, "user_1"}]
		assert.Equal(t, "new", ident.Phone)
		assert.Equal(t, "Kim", ident.FullName)
	}

	removed, err := b.RemoveUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Empty(t, repos.identities)
}

func TestBridge_GrantMembershipKeepsRole(t *testing.T) {
	repos := newMemoryRepos()
	b := newMemoryBridge(repos, nil)
	ctx := context.Background()

	_, err := b.ProvisionOrganizationCreator(ctx, "org_1", "user_1", OrganizationProfile{})
	require.NoError(t, err)

	ident, err := b.GrantMembership(ctx, "org_1", "user_1", access.RoleResidentOccupant, identity.Profile{Phone: "555"})
	require.NoError(t, err)
	assert.Equal(t, access.RoleOwnerAdmin, ident.Role)
	assert.Equal(t, "555", ident.Phone)
}

func TestBridge_OrganizationLifecycle(t *testing.T) {
	repos := newMemoryRepos()
	events := &recordingPublisher{}
	b := newMemoryBridge(repos, events)
	ctx := context.Background()

	require.NoError(t, b.RenameOrganization(ctx, "org_1", "First Name"))
	assert.Equal(t, "First Name", repos.orgs["org_1"].Name)

	require.NoError(t, b.RenameOrganization(ctx, "org_1", "Second Name"))
	assert.Equal(t, "Second Name", repos.orgs["org_1"].Name)

	require.NoError(t, b.DeleteOrganization(ctx, "org_1"))
	assert.Empty(t, repos.orgs)
	require.NoError(t, b.DeleteOrganization(ctx, "org_1"), "deleting twice converges")

	assert.Equal(t, []string{
		identity.EventTypeOrganizationCreated,
		identity.EventTypeOrganizationUpdated,
		identity.EventTypeOrganizationRemoved,
		identity.EventTypeOrganizationRemoved,
	}, events.types())
}
