package handler

import (
	"context"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// MemberService manages memberships of the bound organization.
type MemberService interface {
	AddMember(ctx context.Context, externalCallerID string, role access.Role, profile identity.Profile) (*identity.Identity, error)
	RemoveMember(ctx context.Context, externalCallerID string) error
	ListMembers(ctx context.Context) ([]access.Record, error)
}

// MemberHandler handles membership administration.
type MemberHandler struct {
	BaseHandler
	members MemberService
}

// NewMemberHandler creates a new MemberHandler
func NewMemberHandler(members MemberService) *MemberHandler {
	return &MemberHandler{members: members}
}

// List returns the members visible to the caller, oldest first.
// GET /api/v1/members
func (h *MemberHandler) List(c *gin.Context) {
	records, err := h.members.ListMembers(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, records, len(records), 0, 0)
}

// Add grants a provider user membership with a role. Admin only.
// POST /api/v1/members
func (h *MemberHandler) Add(c *gin.Context) {
	var req dto.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	role := access.ParseRole(req.Role)
	if !role.IsValid() {
		h.HandleError(c, shared.ErrInvalidInput.WithDetail("role", req.Role))
		return
	}

	ident, err := h.members.AddMember(c.Request.Context(), req.ExternalID, role, req.Profile())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToIdentityResponse(ident))
}

// Remove ends a membership. Admin only; callers cannot remove themselves.
// DELETE /api/v1/members/:externalId
func (h *MemberHandler) Remove(c *gin.Context) {
	if err := h.members.RemoveMember(c.Request.Context(), c.Param("externalId")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// RegisterRoutes registers the membership routes
func (h *MemberHandler) RegisterRoutes(rg *gin.RouterGroup) {
	members := rg.Group("/members")
	members.GET("", h.List)
	members.POST("", h.Add)
	members.DELETE("/:externalId", h.Remove)
}
