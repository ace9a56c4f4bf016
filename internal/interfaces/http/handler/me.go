package handler

import (
	"context"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/dto"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// RecordReader reads records under the bound security context.
type RecordReader interface {
	Query(ctx context.Context, entity access.EntityType, filter appaccess.Filter) ([]access.Record, error)
}

// MeHandler describes the authenticated caller.
type MeHandler struct {
	BaseHandler
	records RecordReader
}

// NewMeHandler creates a new MeHandler
func NewMeHandler(records RecordReader) *MeHandler {
	return &MeHandler{records: records}
}

// Me returns the caller's identity, organization and permissions.
// GET /api/v1/me
func (h *MeHandler) Me(c *gin.Context) {
	sc, ok := middleware.GetSecurityContext(c)
	if !ok {
		h.HandleError(c, shared.ErrMissingContext)
		return
	}
	ident, ok := middleware.GetIdentity(c)
	if !ok {
		h.HandleError(c, shared.ErrMissingContext)
		return
	}

	orgs, err := h.records.Query(c.Request.Context(), access.EntityOrganization, appaccess.Filter{ID: sc.OrgID(), Limit: 1})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	org, _ := lo.First(orgs)
	perms := lo.Map(access.Permissions(sc.Role()), func(p access.Permission, _ int) string {
		return string(p)
	})

	h.Success(c, dto.MeResponse{
		Identity:     dto.ToIdentityResponse(ident),
		Organization: org,
		Permissions:  perms,
		Staff:        sc.Role().IsStaff(),
	})
}

// RegisterRoutes registers the caller route
func (h *MeHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.Me)
}
