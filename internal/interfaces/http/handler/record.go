package handler

import (
	"context"
	"strings"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// RecordGateway performs tenant-scoped record operations.
type RecordGateway interface {
	RecordReader
	Create(ctx context.Context, entity access.EntityType, payload access.Record) (access.Record, error)
	Update(ctx context.Context, entity access.EntityType, id string, changes access.Record) (access.Record, error)
	Delete(ctx context.Context, entity access.EntityType, id string) error
}

// listParams are consumed by the listing itself; every other query
// parameter is an equality filter on the field of that name.
var listParams = map[string]struct{}{
	"limit":    {},
	"offset":   {},
	"order_by": {},
	"order":    {},
}

// RecordHandler exposes the access gateway over HTTP. Every operation runs
// under the security context bound by the session middleware.
type RecordHandler struct {
	BaseHandler
	gateway RecordGateway
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(gateway RecordGateway) *RecordHandler {
	return &RecordHandler{gateway: gateway}
}

// List returns the records of an entity visible to the caller.
// GET /api/v1/records/:entity
func (h *RecordHandler) List(c *gin.Context) {
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	filter := appaccess.Filter{
		OrderBy: req.OrderBy,
		Desc:    req.Order == "desc",
		Limit:   req.Limit,
		Offset:  req.Offset,
	}
	for key, values := range c.Request.URL.Query() {
		if _, reserved := listParams[key]; reserved || len(values) == 0 {
			continue
		}
		if filter.Equals == nil {
			filter.Equals = make(map[string]any)
		}
		filter.Equals[key] = values[0]
	}

	records, err := h.gateway.Query(c.Request.Context(), entityParam(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, records, len(records), filter.Limit, filter.Offset)
}

// Get returns one record. Missing and invisible records are both 404.
// GET /api/v1/records/:entity/:id
func (h *RecordHandler) Get(c *gin.Context) {
	records, err := h.gateway.Query(c.Request.Context(), entityParam(c), appaccess.Filter{ID: c.Param("id"), Limit: 1})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if len(records) == 0 {
		h.HandleError(c, shared.ErrNotFound)
		return
	}
	h.Success(c, records[0])
}

// Create inserts a record into the caller's organization.
// POST /api/v1/records/:entity
func (h *RecordHandler) Create(c *gin.Context) {
	var payload access.Record
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.BindingError(c, err)
		return
	}
	if len(payload) == 0 {
		h.BadRequest(c, "Request body must be a non-empty object")
		return
	}

	rec, err := h.gateway.Create(c.Request.Context(), entityParam(c), payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, rec)
}

// Update applies the given field changes to a record.
// PATCH /api/v1/records/:entity/:id
func (h *RecordHandler) Update(c *gin.Context) {
	var changes access.Record
	if err := c.ShouldBindJSON(&changes); err != nil {
		h.BindingError(c, err)
		return
	}
	if len(changes) == 0 {
		h.BadRequest(c, "Request body must be a non-empty object")
		return
	}

	rec, err := h.gateway.Update(c.Request.Context(), entityParam(c), c.Param("id"), changes)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rec)
}

// Delete removes a record.
// DELETE /api/v1/records/:entity/:id
func (h *RecordHandler) Delete(c *gin.Context) {
	if err := h.gateway.Delete(c.Request.Context(), entityParam(c), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// RegisterRoutes registers the record routes
func (h *RecordHandler) RegisterRoutes(rg *gin.RouterGroup) {
	records := rg.Group("/records/:entity")
	records.GET("", h.List)
	records.POST("", h.Create)
	records.GET("/:id", h.Get)
	records.PATCH("/:id", h.Update)
	records.DELETE("/:id", h.Delete)
}

func entityParam(c *gin.Context) access.EntityType {
	return access.EntityType(strings.ToLower(strings.TrimSpace(c.Param("entity"))))
}
