package identity

import (
	"context"
	"sync"

	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// MockOrganizationRepository is a mock implementation of identity.OrganizationRepository
type MockOrganizationRepository struct {
	mock.Mock
}

func (m *MockOrganizationRepository) FindByID(ctx context.Context, id string) (*identity.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Organization), args.Error(1)
}

func (m *MockOrganizationRepository) CreateIfAbsent(ctx context.Context, org *identity.Organization) (bool, error) {
	args := m.Called(ctx, org)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrganizationRepository) Save(ctx context.Context, org *identity.Organization) error {
	args := m.Called(ctx, org)
	return args.Error(0)
}

func (m *MockOrganizationRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockIdentityRepository is a mock implementation of identity.IdentityRepository
type MockIdentityRepository struct {
	mock.Mock
}

func (m *MockIdentityRepository) FindByExternalID(ctx context.Context, orgID, externalID string) (*identity.Identity, error) {
	args := m.Called(ctx, orgID, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Identity), args.Error(1)
}

func (m *MockIdentityRepository) FindAllByExternalID(ctx context.Context, externalID string) ([]*identity.Identity, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).([]*identity.Identity), args.Error(1)
}

func (m *MockIdentityRepository) FindByOrg(ctx context.Context, orgID string) ([]*identity.Identity, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).([]*identity.Identity), args.Error(1)
}

func (m *MockIdentityRepository) CreateIfAbsent(ctx context.Context, ident *identity.Identity) (bool, error) {
	args := m.Called(ctx, ident)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdentityRepository) Save(ctx context.Context, ident *identity.Identity) error {
	args := m.Called(ctx, ident)
	return args.Error(0)
}

func (m *MockIdentityRepository) DeleteByExternalID(ctx context.Context, orgID, externalID string) (int64, error) {
	args := m.Called(ctx, orgID, externalID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockIdentityRepository) DeleteAllByExternalID(ctx context.Context, externalID string) (int64, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(int64), args.Error(1)
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// memoryRepos is a minimal thread-safe store with the same create-or-return
// semantics as the SQL repositories.
type memoryRepos struct {
	mu         sync.Mutex
	orgs       map[string]*identity.Organization
	identities map[[2]string]*identity.Identity
	creates    int
}

func newMemoryRepos() *memoryRepos {
	return &memoryRepos{
		orgs:       map[string]*identity.Organization{},
		identities: map[[2]string]*identity.Identity{},
	}
}

type memoryOrgs struct{ *memoryRepos }

func (r memoryOrgs) FindByID(_ context.Context, id string) (*identity.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orgs[id]; ok {
		cp := *o
		cp.ClearDomainEvents()
		return &cp, nil
	}
	return nil, shared.ErrNotFound
}

func (r memoryOrgs) CreateIfAbsent(_ context.Context, org *identity.Organization) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orgs[org.ID]; ok {
		return false, nil
	}
	r.orgs[org.ID] = org
	return true, nil
}

func (r memoryOrgs) Save(_ context.Context, org *identity.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[org.ID] = org
	return nil
}

func (r memoryOrgs) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orgs[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.orgs, id)
	for k := range r.identities {
		if k[0] == id {
			delete(r.identities, k)
		}
	}
	return nil
}

type memoryIdentities struct{ *memoryRepos }

func (r memoryIdentities) FindByExternalID(_ context.Context, orgID, externalID string) (*identity.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.identities[[2]string{orgID, externalID}]; ok {
		return cloneIdentity(i), nil
	}
	return nil, shared.ErrNotFound
}

func (r memoryIdentities) FindAllByExternalID(_ context.Context, externalID string) ([]*identity.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*identity.Identity
	for k, i := range r.identities {
		if k[1] == externalID {
			out = append(out, cloneIdentity(i))
		}
	}
	return out, nil
}

func (r memoryIdentities) FindByOrg(_ context.Context, orgID string) ([]*identity.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*identity.Identity
	for k, i := range r.identities {
		if k[0] == orgID {
			out = append(out, cloneIdentity(i))
		}
	}
	return out, nil
}

func (r memoryIdentities) CreateIfAbsent(_ context.Context, ident *identity.Identity) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{ident.OrgID, ident.ExternalID}
	if _, ok := r.identities[key]; ok {
		return false, nil
	}
	r.identities[key] = ident
	r.creates++
	return true, nil
}

func (r memoryIdentities) Save(_ context.Context, ident *identity.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[[2]string{ident.OrgID, ident.ExternalID}] = ident
	return nil
}

func (r memoryIdentities) DeleteByExternalID(_ context.Context, orgID, externalID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{orgID, externalID}
	if _, ok := r.identities[key]; !ok {
		return 0, nil
	}
	delete(r.identities, key)
	return 1, nil
}

func (r memoryIdentities) DeleteAllByExternalID(_ context.Context, externalID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k := range r.identities {
		if k[1] == externalID {
			delete(r.identities, k)
			n++
		}
	}
	return n, nil
}

// cloneIdentity returns a copy without pending events, as a fresh load would.
func cloneIdentity(i *identity.Identity) *identity.Identity {
	cp := *i
	cp.ClearDomainEvents()
	cp.Metadata = make(map[string]any, len(i.Metadata))
	for k, v := range i.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}
