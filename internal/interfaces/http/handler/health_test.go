package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }

	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		wantBody   HealthResponse
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   HealthResponse{Status: "ok", Service: "everyday-properties"},
		},
		{
			name:       "all healthy",
			checks:     map[string]HealthCheck{"database": ok, "redis": ok},
			wantStatus: http.StatusOK,
			wantBody: HealthResponse{Status: "ok", Service: "everyday-properties", Checks: map[string]string{
				"database": "ok",
				"redis":    "ok",
			}},
		},
		{
			name:       "one dependency down",
			checks:     map[string]HealthCheck{"database": ok, "redis": down},
			wantStatus: http.StatusServiceUnavailable,
			wantBody: HealthResponse{Status: "degraded", Service: "everyday-properties", Checks: map[string]string{
				"database": "ok",
				"redis":    "unavailable",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, NewHealthHandler("everyday-properties", tt.checks), nil)

			w := performRequest(router, http.MethodGet, "/api/v1/health", nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			var got HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.wantBody, got)
		})
	}
}
