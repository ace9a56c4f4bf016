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
)

const (
	bypassProfileSync = "identity_profile_sync"
	bypassUserRemoval = "identity_user_removal"
)

// AddMember grants externalCallerID membership with role in the bound
// organization. The bound caller needs the admin permission. An existing
// member gets the new role.
func (b *Bridge) AddMember(ctx context.Context, externalCallerID string, role access.Role, profile identity.Profile) (*identity.Identity, error) {
	sc, err := b.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	return b.grant(ctx, sc.OrgID(), externalCallerID, role, profile, true)
}

// RemoveMember ends externalCallerID's membership in the bound organization.
// The bound caller needs the admin permission and cannot remove themselves.
func (b *Bridge) RemoveMember(ctx context.Context, externalCallerID string) error {
	sc, err := b.requireAdmin(ctx)
	if err != nil {
		return err
	}
	callerID := strings.TrimSpace(externalCallerID)
	if callerID == sc.CallerID() {
		return shared.ErrInvalidInput.WithDetail("reason", "cannot remove own membership")
	}
	removed, err := b.revoke(ctx, sc.OrgID(), callerID)
	if err != nil {
		return err
	}
	if !removed {
		return shared.ErrNotFound
	}
	return nil
}

// ListMembers lists the identities of the bound organization visible to the
// bound caller, oldest first. Residents see only themselves.
func (b *Bridge) ListMembers(ctx context.Context) ([]access.Record, error) {
	if b.gateway == nil {
		return nil, shared.ErrMissingContext
	}
	return b.gateway.Query(ctx, access.EntityIdentity, appaccess.Filter{OrderBy: "created_at"})
}

// GrantMembership is the provider-driven membership path. It creates the
// identity with role or, when it exists, overwrites its contact fields and
// keeps its role.
func (b *Bridge) GrantMembership(ctx context.Context, externalOrgID, externalCallerID string, role access.Role, profile identity.Profile) (*identity.Identity, error) {
	return b.grant(ctx, strings.TrimSpace(externalOrgID), externalCallerID, role, profile, false)
}

// RevokeMembership is the provider-driven removal of one membership. It
// reports whether an identity was removed.
func (b *Bridge) RevokeMembership(ctx context.Context, externalOrgID, externalCallerID string) (bool, error) {
	return b.revoke(ctx, strings.TrimSpace(externalOrgID), strings.TrimSpace(externalCallerID))
}

func (b *Bridge) grant(ctx context.Context, orgID, externalCallerID string, role access.Role, profile identity.Profile, assignRole bool) (*identity.Identity, error) {
	callerID := strings.TrimSpace(externalCallerID)
	if orgID == "" || callerID == "" {
		return nil, shared.ErrInvalidContext.WithDetail("reason", "organization and member are required")
	}
	if !role.IsValid() {
		return nil, shared.ErrInvalidInput.WithDetail("role", role.String())
	}

	var (
		result  *identity.Identity
		pending []shared.DomainEvent
	)
	err := b.within(ctx, orgID, callerID, func(ctx context.Context) error {
		org, err := b.ensureOrganization(ctx, orgID, OrganizationProfile{})
		if err != nil {
			return err
		}
		pending = append(pending, org.GetDomainEvents()...)

		ident, created, err := b.createOrReturn(ctx, orgID, callerID, role, profile)
		if err != nil {
			return err
		}
		if !created {
			if assignRole {
				if err := ident.ChangeRole(role); err != nil {
					return err
				}
			} else if err := ident.SyncProfile(profile); err != nil {
				return err
			}
			if len(ident.GetDomainEvents()) > 0 {
				if err := b.identities.Save(ctx, ident); err != nil {
					return err
				}
			}
		}
		pending = append(pending, ident.GetDomainEvents()...)
		result = ident
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.publish(ctx, pending)
	return result, nil
}

func (b *Bridge) revoke(ctx context.Context, orgID, callerID string) (bool, error) {
	if orgID == "" || callerID == "" {
		return false, shared.ErrInvalidContext.WithDetail("reason", "organization and member are required")
	}
	var removed int64
	err := b.within(ctx, orgID, callerID, func(ctx context.Context) error {
		var err error
		removed, err = b.identities.DeleteByExternalID(ctx, orgID, callerID)
		return err
	})
	if err != nil {
		return false, err
	}
	if removed > 0 {
		b.publish(ctx, []shared.DomainEvent{identity.NewIdentityRemovedEvent(orgID, callerID, "")})
		b.logger.Info("Membership revoked", zap.String("org_id", orgID), zap.String("caller_id", callerID))
	}
	return removed > 0, nil
}

// SyncProfile overwrites the contact fields of every identity held by
// externalCallerID, in every organization. It returns how many identities
// were updated.
func (b *Bridge) SyncProfile(ctx context.Context, externalCallerID string, profile identity.Profile) (int, error) {
	callerID := strings.TrimSpace(externalCallerID)
	if callerID == "" {
		return 0, shared.ErrInvalidContext.WithDetail("reason", "missing caller id")
	}

	var (
		updated int
		pending []shared.DomainEvent
	)
	err := b.bypass.Bypass(ctx, bypassProfileSync, func(ctx context.Context) error {
		idents, err := b.identities.FindAllByExternalID(ctx, callerID)
		if err != nil {
			return err
		}
		for _, ident := range idents {
			if err := ident.SyncProfile(profile); err != nil {
				return err
			}
			if err := b.identities.Save(ctx, ident); err != nil {
				return err
			}
			updated++
			pending = append(pending, ident.GetDomainEvents()...)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	b.publish(ctx, pending)
	return updated, nil
}

// RemoveUser removes every identity held by externalCallerID.
func (b *Bridge) RemoveUser(ctx context.Context, externalCallerID string) (int64, error) {
	callerID := strings.TrimSpace(externalCallerID)
	if callerID == "" {
		return 0, shared.ErrInvalidContext.WithDetail("reason", "missing caller id")
	}
	var removed int64
	err := b.bypass.Bypass(ctx, bypassUserRemoval, func(ctx context.Context) error {
		var err error
		removed, err = b.identities.DeleteAllByExternalID(ctx, callerID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		b.publish(ctx, []shared.DomainEvent{identity.NewIdentityRemovedEvent("", callerID, "")})
	}
	return removed, nil
}

// RenameOrganization overwrites the organization's display name. An unknown
// organization is created with that name.
func (b *Bridge) RenameOrganization(ctx context.Context, externalOrgID, name string) error {
	orgID := strings.TrimSpace(externalOrgID)
	if orgID == "" {
		return shared.ErrInvalidContext.WithDetail("reason", "missing organization id")
	}
	var pending []shared.DomainEvent
	err := b.within(ctx, orgID, systemCaller, func(ctx context.Context) error {
		org, err := b.ensureOrganization(ctx, orgID, OrganizationProfile{Name: name})
		if err != nil {
			return err
		}
		if len(org.GetDomainEvents()) == 0 && org.Name != strings.TrimSpace(name) {
			if err := org.Rename(name); err != nil {
				return err
			}
			if err := b.orgs.Save(ctx, org); err != nil {
				return err
			}
		}
		pending = org.GetDomainEvents()
		return nil
	})
	if err != nil {
		return err
	}
	b.publish(ctx, pending)
	return nil
}

// DeleteOrganization removes the organization and everything it owns.
// Deleting an unknown organization is not an error.
func (b *Bridge) DeleteOrganization(ctx context.Context, externalOrgID string) error {
	orgID := strings.TrimSpace(externalOrgID)
	if orgID == "" {
		return shared.ErrInvalidContext.WithDetail("reason", "missing organization id")
	}
	err := b.within(ctx, orgID, systemCaller, func(ctx context.Context) error {
		return b.orgs.Delete(ctx, orgID)
	})
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	b.publish(ctx, []shared.DomainEvent{identity.NewOrganizationRemovedEvent(orgID)})
	b.logger.Info("Organization deleted", zap.String("org_id", orgID))
	return nil
}

// systemCaller is the caller id bound for provider-driven organization
// operations that have no acting user.
const systemCaller = "system:identity-provider"

func (b *Bridge) requireAdmin(ctx context.Context) (access.SecurityContext, error) {
	sc, ok := appaccess.Current(ctx)
	if !ok {
		return access.SecurityContext{}, shared.ErrMissingContext
	}
	if !access.HasPermission(sc, access.PermissionAdmin) {
		b.logger.Info("Access denied",
			zap.String("org_id", sc.OrgID()),
			zap.String("caller_id", sc.CallerID()),
			zap.String("role", sc.Role().String()),
			zap.String("action", "manage_members"))
		return access.SecurityContext{}, shared.ErrAccessDenied.WithDetail("action", "manage_members")
	}
	return sc, nil
}
