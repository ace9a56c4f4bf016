package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Provider event types
const (
	EventUserCreated                   = "user.created"
	EventUserUpdated                   = "user.updated"
	EventUserDeleted                   = "user.deleted"
	EventOrganizationMembershipCreated = "organizationMembership.created"
	EventOrganizationMembershipDeleted = "organizationMembership.deleted"
	EventOrganizationCreated           = "organization.created"
	EventOrganizationUpdated           = "organization.updated"
	EventOrganizationDeleted           = "organization.deleted"
)

// WebhookEvent is one verified identity provider event.
type WebhookEvent struct {
	// ID is the delivery id used for idempotency.
	ID   string          `json:"-" validate:"required"`
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data" validate:"required"`
}

type emailAddress struct {
	EmailAddress string `json:"email_address"`
}

type phoneNumber struct {
	PhoneNumber string `json:"phone_number"`
}

// userData is the payload of user.* events. Timestamps are epoch milliseconds.
type userData struct {
	ID             string         `json:"id" validate:"required"`
	EmailAddresses []emailAddress `json:"email_addresses"`
	PhoneNumbers   []phoneNumber  `json:"phone_numbers"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	CreatedAt      int64          `json:"created_at"`
	UpdatedAt      int64          `json:"updated_at"`
}

func (u userData) profile() identity.Profile {
	p := identity.Profile{
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		ProviderCreatedAt: fromMillis(u.CreatedAt),
		ProviderUpdatedAt: fromMillis(u.UpdatedAt),
	}
	if len(u.EmailAddresses) > 0 {
		p.Email = u.EmailAddresses[0].EmailAddress
	}
	if len(u.PhoneNumbers) > 0 {
		p.Phone = u.PhoneNumbers[0].PhoneNumber
	}
	return p
}

type membershipData struct {
	Role         string `json:"role"`
	Organization struct {
		ID   string `json:"id" validate:"required"`
		Name string `json:"name"`
	} `json:"organization"`
	PublicUserData struct {
		UserID       string `json:"user_id" validate:"required"`
		EmailAddress string `json:"identifier"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		PhoneNumber  string `json:"phone_number"`
	} `json:"public_user_data"`
}

type organizationData struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
}

type deletedData struct {
	ID string `json:"id" validate:"required"`
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// WebhookConfig contains configuration for the webhook service
type WebhookConfig struct {
	// IdempotencyTTL is how long a processed delivery id is remembered.
	IdempotencyTTL time.Duration
}

// WebhookService applies identity provider events. Every handler is an
// overwrite or a create-or-return, so redelivered and reordered events
// converge on the same state.
type WebhookService struct {
	bridge      *Bridge
	idempotency shared.IdempotencyStore
	validate    *validator.Validate
	config      WebhookConfig
	logger      *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(bridge *Bridge, idempotency shared.IdempotencyStore, config WebhookConfig, logger *zap.Logger) *WebhookService {
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = shared.DefaultIdempotencyTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookService{
		bridge:      bridge,
		idempotency: idempotency,
		validate:    validator.New(),
		config:      config,
		logger:      logger,
	}
}

// Process applies evt once. A delivery id seen before is acknowledged
// without effect. The id is recorded only after the event was applied, so a
// failed delivery is retried by the provider.
func (s *WebhookService) Process(ctx context.Context, evt WebhookEvent) (*WebhookResult, error) {
	if err := s.validate.Struct(evt); err != nil {
		return nil, shared.ErrInvalidInput.Wrap(err)
	}
	result := &WebhookResult{EventID: evt.ID, EventType: evt.Type, Processed: true}

	if s.idempotency != nil {
		seen, err := s.idempotency.IsProcessed(ctx, evt.ID)
		if err != nil {
			return nil, fmt.Errorf("check webhook idempotency: %w", err)
		}
		if seen {
			result.Processed = false
			result.Message = "duplicate delivery"
			return result, nil
		}
	}

	s.logger.Info("Processing identity webhook event",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type))

	var err error
	switch evt.Type {
	case EventUserCreated:
		// Identities are per organization; they appear on membership or first request.
		result.Message = "no action"
	case EventUserUpdated:
		err = s.handleUserUpdated(ctx, evt.Data, result)
	case EventUserDeleted:
		err = s.handleUserDeleted(ctx, evt.Data, result)
	case EventOrganizationMembershipCreated:
		err = s.handleMembershipCreated(ctx, evt.Data)
	case EventOrganizationMembershipDeleted:
		err = s.handleMembershipDeleted(ctx, evt.Data)
	case EventOrganizationCreated:
		err = s.handleOrganizationCreated(ctx, evt.Data)
	case EventOrganizationUpdated:
		err = s.handleOrganizationUpdated(ctx, evt.Data)
	case EventOrganizationDeleted:
		err = s.handleOrganizationDeleted(ctx, evt.Data)
	default:
		s.logger.Debug("Unhandled identity webhook event type", zap.String("event_type", evt.Type))
		result.Processed = false
		result.Message = "unhandled event type"
	}
	if err != nil {
		s.logger.Error("Failed to process identity webhook event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type),
			zap.Error(err))
		return nil, err
	}

	if s.idempotency != nil {
		if _, err := s.idempotency.MarkProcessed(ctx, evt.ID, s.config.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to record processed webhook event",
				zap.String("event_id", evt.ID),
				zap.Error(err))
		}
	}
	return result, nil
}

func (s *WebhookService) decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return shared.ErrInvalidInput.Wrap(err)
	}
	if err := s.validate.Struct(v); err != nil {
		return shared.ErrInvalidInput.Wrap(err)
	}
	return nil
}

func (s *WebhookService) handleUserUpdated(ctx context.Context, raw json.RawMessage, result *WebhookResult) error {
	var data userData
	if err := s.decode(raw, &data); err != nil {
		return err
	}
	n, err := s.bridge.SyncProfile(ctx, data.ID, data.profile())
	if err != nil {
		return err
	}
	result.Message = fmt.Sprintf("updated %d identities", n)
	return nil
}

func (s *WebhookService) handleUserDeleted(ctx context.Context, raw json.RawMessage, result *WebhookResult) error {
	var data deletedData
	if err := s.decode(raw, &data); err != nil {
		return err
	}
	n, err := s.bridge.RemoveUser(ctx, data.ID)
	if err != nil {
		return err
	}
	result.Message = fmt.Sprintf("removed %d identities", n)
	return nil
}

func (s *WebhookService) handleMembershipCreated(ctx context.Context, raw json.RawMessage) error {
	var data membershipData
	if err := s.decode(raw, &data); err != nil {
		return err
	}
	u := data.PublicUserData
	profile := identity.Profile{
		Email:     u.EmailAddress,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.PhoneNumber,
	}
	_, err := s.bridge.GrantMembership(ctx, data.Organization.ID, u.UserID, ProviderRole(data.Role), profile)
	return err
}

func (s *WebhookService) handleMembershipDeleted(ctx context.Context, raw json.RawMessage) error {
	var data membershipData
	if err := s.decode(raw, &data); err != nil {
		return err
	}
	_, err := s.bridge.RevokeMembership(ctx, data.Organization.ID, data.PublicUserData.UserID)
	return err
}

func (s *WebhookService) handleOrganizationCreated(ctx context.Context, raw json.RawMessage) error {
	var data organizationData
	if err := s.decode(raw, &data); err != nil {
		return err
	}
	if data.CreatedBy == "" {
		return s.bridge.RenameOrganization(ctx, data.ID, data.Name)
	}
	_, err := s.bridge.ProvisionOrganizationCreator(ctx, data.ID, data.CreatedBy, OrganizationProfile{Name: data.Name})
	return err
}

func (s *WebhookService) handleOrganizationUpdated(ctx context.Context, raw json.RawMessage) error {
	var data organizationData
	if err := s.decode(raw, &data); err != nil {
		return err
	}
	return s.bridge.RenameOrganization(ctx, data.ID, data.Name)
}

func (s *WebhookService) handleOrganizationDeleted(ctx context.Context, raw json.RawMessage) error {
	var data deletedData
	if err := s.decode(raw, &data); err != nil {
		return err
	}
	return s.bridge.DeleteOrganization(ctx, data.ID)
}

// ProviderRole maps a provider membership role ("org:admin", "basic_member",
// "manager", ...) onto a role. Anything unrecognised is a resident.
func ProviderRole(providerRole string) access.Role {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(providerRole)), "org:")
	switch name {
	case "member", "basic_member", "":
		return access.RoleResidentOccupant
	}
	if role := access.ParseRole(name); role != access.RoleUnknown {
		return role
	}
	return access.RoleResidentOccupant
}

func fromMillis(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
