package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/dto"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Query(ctx context.Context, entity access.EntityType, filter appaccess.Filter) ([]access.Record, error) {
	args := m.Called(ctx, entity, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]access.Record), args.Error(1)
}

func (m *mockGateway) Create(ctx context.Context, entity access.EntityType, payload access.Record) (access.Record, error) {
	args := m.Called(ctx, entity, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(access.Record), args.Error(1)
}

func (m *mockGateway) Update(ctx context.Context, entity access.EntityType, id string, changes access.Record) (access.Record, error) {
	args := m.Called(ctx, entity, id, changes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(access.Record), args.Error(1)
}

func (m *mockGateway) Delete(ctx context.Context, entity access.EntityType, id string) error {
	return m.Called(ctx, entity, id).Error(0)
}

type registrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// newTestRouter mounts h under /api/v1. A non-nil ident is placed on every
// request the way the session middleware does.
func newTestRouter(t *testing.T, h registrar, ident *identity.Identity) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()

	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api/v1")
	if ident != nil {
		sc, err := access.NewSecurityContext(ident.OrgID, ident.ExternalID, ident.Role)
		require.NoError(t, err)
		api.Use(func(c *gin.Context) {
			c.Set(middleware.SecurityContextKey, sc)
			c.Set(middleware.IdentityKey, ident)
			c.Next()
		})
	}
	h.RegisterRoutes(api)
	return r
}

func newIdentity(t *testing.T, orgID, externalID string, role access.Role) *identity.Identity {
	t.Helper()
	ident, err := identity.NewIdentity(orgID, externalID, role, identity.Profile{
		FirstName: "Pat",
		LastName:  "Lee",
		Email:     externalID + "@example.com",
	})
	require.NoError(t, err)
	return ident
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		_ = json.NewEncoder(&buf).Encode(v)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// decodeData re-decodes the response data into out.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}
