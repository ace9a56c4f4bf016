package handler

import (
	"net/http"
	"testing"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRecordRouter(t *testing.T, gw *mockGateway, role access.Role) http.Handler {
	t.Helper()
	return newTestRouter(t, NewRecordHandler(gw), newIdentity(t, "org_1", "user_1", role))
}

func TestRecordHandler_List(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Query", mock.Anything, access.EntityWorkOrder, appaccess.Filter{
		Equals:  map[string]any{"status": "open"},
		OrderBy: "created_at",
		Limit:   50,
	}).Return([]access.Record{{"id": "wo_1"}, {"id": "wo_2"}}, nil)

	w := performRequest(newRecordRouter(t, gw, access.RoleManager), http.MethodGet, "/api/v1/records/work_order?status=open", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.Count)
	assert.Equal(t, 50, resp.Meta.Limit)
	gw.AssertExpectations(t)
}

func TestRecordHandler_ListPaging(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Query", mock.Anything, access.EntityLease, appaccess.Filter{
		OrderBy: "start_date",
		Desc:    true,
		Limit:   10,
		Offset:  20,
	}).Return([]access.Record{}, nil)

	w := performRequest(newRecordRouter(t, gw, access.RoleManager), http.MethodGet,
		"/api/v1/records/LEASE?limit=10&offset=20&order_by=start_date&order=desc", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	gw.AssertExpectations(t)
}

func TestRecordHandler_ListInvalidPaging(t *testing.T) {
	gw := &mockGateway{}

	w := performRequest(newRecordRouter(t, gw, access.RoleManager), http.MethodGet, "/api/v1/records/lease?limit=1000", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidInput, decodeResponse(t, w).Error.Code)
	gw.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordHandler_ListDenied(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Query", mock.Anything, access.EntityLedgerEntry, mock.Anything).Return(nil, shared.ErrAccessDenied)

	w := performRequest(newRecordRouter(t, gw, access.RoleMaintenanceStaff), http.MethodGet, "/api/v1/records/ledger_entry", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	info := decodeResponse(t, w).Error
	assert.Equal(t, dto.ErrCodeForbidden, info.Code)
	assert.Equal(t, "Not authorized", info.Message)
}

func TestRecordHandler_Get(t *testing.T) {
	t.Run("visible", func(t *testing.T) {
		gw := &mockGateway{}
		gw.On("Query", mock.Anything, access.EntityUnit, appaccess.Filter{ID: "unit_1", Limit: 1}).
			Return([]access.Record{{"id": "unit_1", "org_id": "org_1"}}, nil)

		w := performRequest(newRecordRouter(t, gw, access.RoleResidentOccupant), http.MethodGet, "/api/v1/records/unit/unit_1", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var rec access.Record
		decodeData(t, w, &rec)
		assert.Equal(t, "unit_1", rec.String("id"))
	})

	t.Run("invisible or missing", func(t *testing.T) {
		gw := &mockGateway{}
		gw.On("Query", mock.Anything, access.EntityUnit, appaccess.Filter{ID: "unit_9", Limit: 1}).
			Return([]access.Record{}, nil)

		w := performRequest(newRecordRouter(t, gw, access.RoleResidentOccupant), http.MethodGet, "/api/v1/records/unit/unit_9", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeResponse(t, w).Error.Code)
	})
}

func TestRecordHandler_Create(t *testing.T) {
	gw := &mockGateway{}
	payload := access.Record{"name": "Maple Court"}
	gw.On("Create", mock.Anything, access.EntityProperty, payload).
		Return(access.Record{"id": "prop_1", "org_id": "org_1", "name": "Maple Court"}, nil)

	w := performRequest(newRecordRouter(t, gw, access.RoleManager), http.MethodPost, "/api/v1/records/property", payload)

	require.Equal(t, http.StatusCreated, w.Code)
	var rec access.Record
	decodeData(t, w, &rec)
	assert.Equal(t, "org_1", rec.String("org_id"))
	gw.AssertExpectations(t)
}

func TestRecordHandler_CreateRejectsBadBody(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{name: "malformed json", body: "{not json", wantCode: dto.ErrCodeInvalidJSON},
		{name: "empty object", body: "{}", wantCode: dto.ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &mockGateway{}

			w := performRequest(newRecordRouter(t, gw, access.RoleManager), http.MethodPost, "/api/v1/records/property", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, decodeResponse(t, w).Error.Code)
			gw.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRecordHandler_Update(t *testing.T) {
	gw := &mockGateway{}
	changes := access.Record{"phone": "+15551234567"}
	gw.On("Update", mock.Anything, access.EntityIdentity, "ident_1", changes).
		Return(access.Record{"id": "ident_1", "phone": "+15551234567"}, nil)

	w := performRequest(newRecordRouter(t, gw, access.RoleResidentOccupant), http.MethodPatch, "/api/v1/records/identity/ident_1", changes)

	assert.Equal(t, http.StatusOK, w.Code)
	gw.AssertExpectations(t)
}

func TestRecordHandler_UpdateDenied(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Update", mock.Anything, access.EntityIdentity, "ident_2", mock.Anything).Return(nil, shared.ErrAccessDenied)

	w := performRequest(newRecordRouter(t, gw, access.RoleResidentOccupant), http.MethodPatch,
		"/api/v1/records/identity/ident_2", access.Record{"role": "owner_admin"})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecordHandler_Delete(t *testing.T) {
	gw := &mockGateway{}
	gw.On("Delete", mock.Anything, access.EntityNotification, "n_1").Return(nil)
	gw.On("Delete", mock.Anything, access.EntityNotification, "n_2").Return(shared.ErrNotFound)
	router := newRecordRouter(t, gw, access.RoleManager)

	w := performRequest(router, http.MethodDelete, "/api/v1/records/notification/n_1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = performRequest(router, http.MethodDelete, "/api/v1/records/notification/n_2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	gw.AssertExpectations(t)
}
