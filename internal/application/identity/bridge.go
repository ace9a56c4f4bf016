package identity

import (
	"context"
	"errors"
	"strings"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Bypasser runs fn in a storage session that spans organizations. It is used
// for provider synchronization of one external user across every
// organization they belong to.
type Bypasser interface {
	Bypass(ctx context.Context, reason string, fn func(ctx context.Context) error) error
}

type directBypass struct{}

func (directBypass) Bypass(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// IdentityCache keeps resolved identities for the hot request path.
// Generation changes on every invalidation; AddIfCurrent refuses an identity
// loaded before the generation it was given moved on.
type IdentityCache interface {
	Get(orgID, externalID string) (*identity.Identity, bool)
	Generation() uint64
	AddIfCurrent(ident *identity.Identity, generation uint64) bool
	Invalidate(orgID, externalID string)
}

type resolved struct {
	res        *Resolution
	generation uint64
}

// Resolution is the outcome of Resolve. Exactly one of NoOrganization and
// Identity is set.
type Resolution struct {
	NoOrganization bool
	Identity       *identity.Identity
	// Created reports whether this call created the identity.
	Created bool
}

// SecurityContext builds the context to bind for the resolved identity.
func (r *Resolution) SecurityContext() (access.SecurityContext, error) {
	if r == nil || r.NoOrganization || r.Identity == nil {
		return access.SecurityContext{}, shared.ErrNoOrganization
	}
	return access.NewSecurityContext(r.Identity.OrgID, r.Identity.ExternalID, r.Identity.Role)
}

// OrganizationProfile describes an organization as the provider reports it.
type OrganizationProfile struct {
	Name string
	// Settings overrides the configured defaults when set.
	Settings *identity.OrganizationSettings
	// Creator is the creator's contact profile, when known.
	Creator identity.Profile
}

// BridgeConfig contains the bridge's collaborators
type BridgeConfig struct {
	Organizations identity.OrganizationRepository
	Identities    identity.IdentityRepository
	Propagator    *appaccess.Propagator
	Gateway       *appaccess.Gateway
	Bypass        Bypasser
	Cache         IdentityCache
	Events        shared.EventPublisher
	Defaults      identity.OrganizationSettings
	Logger        *zap.Logger
}

// Bridge maps authenticated provider identities onto organizations and
// identities. It is the only component that creates identities.
type Bridge struct {
	orgs       identity.OrganizationRepository
	identities identity.IdentityRepository
	propagator *appaccess.Propagator
	gateway    *appaccess.Gateway
	bypass     Bypasser
	cache      IdentityCache
	events     shared.EventPublisher
	defaults   identity.OrganizationSettings
	logger     *zap.Logger
	group      singleflight.Group
}

var _ appaccess.WriteObserver = (*Bridge)(nil)

// NewBridge creates a Bridge
func NewBridge(cfg BridgeConfig) *Bridge {
	b := &Bridge{
		orgs:       cfg.Organizations,
		identities: cfg.Identities,
		propagator: cfg.Propagator,
		gateway:    cfg.Gateway,
		bypass:     cfg.Bypass,
		cache:      cfg.Cache,
		events:     cfg.Events,
		defaults:   cfg.Defaults,
		logger:     cfg.Logger,
	}
	if b.propagator == nil {
		b.propagator = appaccess.NewPropagator(nil, cfg.Logger)
	}
	if b.bypass == nil {
		b.bypass = directBypass{}
	}
	if b.defaults.Timezone == "" {
		b.defaults = identity.DefaultOrganizationSettings()
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.gateway != nil {
		b.gateway.Observe(b)
	}
	return b
}

// Resolve maps an authenticated caller to its identity in orgID, creating the
// organization and a resident identity on first sight. An empty orgID is the
// explicit "no organization" result, not an error. Existing identities are
// returned unchanged; profile updates go through SyncProfile.
func (b *Bridge) Resolve(ctx context.Context, externalCallerID, externalOrgID string, profile identity.Profile) (*Resolution, error) {
	callerID := strings.TrimSpace(externalCallerID)
	orgID := strings.TrimSpace(externalOrgID)
	if callerID == "" {
		return nil, shared.ErrInvalidContext.WithDetail("reason", "missing caller id")
	}
	if orgID == "" {
		return &Resolution{NoOrganization: true}, nil
	}
	if b.cache != nil {
		if ident, ok := b.cache.Get(orgID, callerID); ok {
			return &Resolution{Identity: ident}, nil
		}
	}

	// Concurrent first requests for the same pair share one database round
	// trip; the shared call must outlive any single caller's cancellation.
	v, err, _ := b.group.Do(orgID+"\x00"+callerID, func() (interface{}, error) {
		var gen uint64
		if b.cache != nil {
			gen = b.cache.Generation()
		}
		res, err := b.resolve(context.WithoutCancel(ctx), orgID, callerID, profile)
		if err != nil {
			return nil, err
		}
		return resolved{res: res, generation: gen}, nil
	})
	if err != nil {
		return nil, err
	}
	r := v.(resolved)
	if b.cache != nil {
		b.cache.AddIfCurrent(r.res.Identity, r.generation)
	}
	return r.res, nil
}

func (b *Bridge) resolve(ctx context.Context, orgID, callerID string, profile identity.Profile) (*Resolution, error) {
	var (
		res     *Resolution
		pending []shared.DomainEvent
	)
	err := b.within(ctx, orgID, callerID, func(ctx context.Context) error {
		org, err := b.ensureOrganization(ctx, orgID, OrganizationProfile{})
		if err != nil {
			return err
		}
		pending = append(pending, org.GetDomainEvents()...)

		ident, created, err := b.createOrReturn(ctx, orgID, callerID, access.RoleResidentOccupant, profile)
		if err != nil {
			return err
		}
		if created {
			pending = append(pending, ident.GetDomainEvents()...)
		}
		res = &Resolution{Identity: ident, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.publish(ctx, pending)
	if res.Created {
		b.logger.Info("Identity created",
			zap.String("org_id", orgID),
			zap.String("caller_id", callerID),
			zap.String("role", res.Identity.Role.String()))
	}
	return res, nil
}

// ProvisionOrganizationCreator creates the organization for externalOrgID if
// it does not exist and makes externalCallerID its owner_admin. Repeating the
// call is harmless; an existing identity is promoted.
func (b *Bridge) ProvisionOrganizationCreator(ctx context.Context, externalOrgID, externalCallerID string, org OrganizationProfile) (*Resolution, error) {
	orgID := strings.TrimSpace(externalOrgID)
	callerID := strings.TrimSpace(externalCallerID)
	if orgID == "" || callerID == "" {
		return nil, shared.ErrInvalidContext.WithDetail("reason", "organization and creator are required")
	}

	var (
		res     *Resolution
		pending []shared.DomainEvent
	)
	err := b.within(ctx, orgID, callerID, func(ctx context.Context) error {
		o, err := b.ensureOrganization(ctx, orgID, org)
		if err != nil {
			return err
		}
		pending = append(pending, o.GetDomainEvents()...)

		ident, created, err := b.createOrReturn(ctx, orgID, callerID, access.RoleOwnerAdmin, org.Creator)
		if err != nil {
			return err
		}
		if !created && ident.Role != access.RoleOwnerAdmin {
			if err := ident.ChangeRole(access.RoleOwnerAdmin); err != nil {
				return err
			}
			if err := b.identities.Save(ctx, ident); err != nil {
				return err
			}
		}
		pending = append(pending, ident.GetDomainEvents()...)
		res = &Resolution{Identity: ident, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.publish(ctx, pending)
	b.logger.Info("Organization creator provisioned",
		zap.String("org_id", orgID),
		zap.String("caller_id", callerID),
		zap.Bool("identity_created", res.Created))
	return res, nil
}

// ensureOrganization returns the organization, creating it with the
// configured defaults when absent.
func (b *Bridge) ensureOrganization(ctx context.Context, orgID string, profile OrganizationProfile) (*identity.Organization, error) {
	org, err := b.orgs.FindByID(ctx, orgID)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	settings := b.defaults
	if profile.Settings != nil {
		settings = *profile.Settings
	}
	candidate, err := identity.NewOrganization(orgID, profile.Name, settings)
	if err != nil {
		return nil, err
	}
	created, err := b.orgs.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		return candidate, nil
	}
	return b.orgs.FindByID(ctx, orgID)
}

// createOrReturn performs the atomic create-or-return of (orgID, callerID).
// When the insert loses a race exactly one relookup follows.
func (b *Bridge) createOrReturn(ctx context.Context, orgID, callerID string, role access.Role, profile identity.Profile) (*identity.Identity, bool, error) {
	existing, err := b.identities.FindByExternalID(ctx, orgID, callerID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	candidate, err := identity.NewIdentity(orgID, callerID, role, profile)
	if err != nil {
		return nil, false, err
	}
	created, err := b.identities.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, false, err
	}
	if created {
		return candidate, true, nil
	}

	winner, err := b.identities.FindByExternalID(ctx, orgID, callerID)
	if errors.Is(err, shared.ErrNotFound) {
		b.logger.Warn("Identity create-or-return lost a race and the relookup missed",
			zap.String("org_id", orgID),
			zap.String("caller_id", callerID))
		return nil, false, shared.ErrDuplicateIdentity.
			WithDetail("org_id", orgID).
			WithDetail("caller_id", callerID)
	}
	if err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

// within runs fn bound to orgID. A unit of work already bound to orgID is
// reused; otherwise a context for callerID without a role is bound, which
// lets the storage session scope to the organization while granting nothing
// through the policy engine.
func (b *Bridge) within(ctx context.Context, orgID, callerID string, fn func(ctx context.Context) error) error {
	if sc, ok := appaccess.Current(ctx); ok && sc.OrgID() == orgID {
		return fn(ctx)
	}
	sc, err := access.NewSecurityContext(orgID, callerID, access.RoleUnknown)
	if err != nil {
		return err
	}
	return b.propagator.RunWith(ctx, sc, fn)
}

// publish hands events to the publisher once the unit of work in ctx, if
// any, has committed.
func (b *Bridge) publish(ctx context.Context, events []shared.DomainEvent) {
	if b.events == nil || len(events) == 0 {
		return
	}
	appaccess.AfterCommit(ctx, func(ctx context.Context) {
		if err := b.events.Publish(ctx, events...); err != nil {
			b.logger.Error("Failed to publish identity events", zap.Error(err))
		}
	})
}

// RecordWritten keeps identity writes made through the gateway consistent
// with the bridge's own: cached entries are dropped and the matching identity
// events are published.
func (b *Bridge) RecordWritten(ctx context.Context, w appaccess.Write) {
	if w.Entity != access.EntityIdentity {
		return
	}
	var events []shared.DomainEvent
	before := recordKey(w.Before)
	after := recordKey(w.After)
	if before.valid() && before != after {
		b.evict(before)
		events = append(events, identity.NewIdentityRemovedEvent(before.orgID, before.externalID, w.Before.String("id")))
	}
	if after.valid() {
		b.evict(after)
		if w.Action == access.ActionUpdate {
			events = append(events, identity.NewIdentityChangedEvent(after.orgID, after.externalID, w.After.String("id"), w.After.String("role")))
		}
	}
	b.publish(ctx, events)
}

type identityKey struct{ orgID, externalID string }

func recordKey(r access.Record) identityKey {
	return identityKey{orgID: r.String("org_id"), externalID: r.String("external_id")}
}

func (k identityKey) valid() bool {
	return k.orgID != "" && k.externalID != ""
}

func (b *Bridge) evict(k identityKey) {
	if b.cache != nil {
		b.cache.Invalidate(k.orgID, k.externalID)
	}
}
