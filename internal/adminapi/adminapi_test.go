package adminapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavecast/netio/internal/adminapi"
	"github.com/wavecast/netio/internal/adminapi/handlers"
	"github.com/wavecast/netio/internal/adminapi/models"
)

func performRequest(r http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestServer_Addr(t *testing.T) {
	s := adminapi.New("0.0.0.0", 9090, "", nil)
	assert.Equal(t, "0.0.0.0:9090", s.Addr())
}

func TestRoutes_HealthEndpoint(t *testing.T) {
	s := adminapi.New("127.0.0.1", 8088, "", nil)

	w := performRequest(s.Engine(), http.MethodGet, "/api/v1/health")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRoutes_StatsEndpoint(t *testing.T) {
	s := adminapi.New("127.0.0.1", 8088, "", nil)

	w := performRequest(s.Engine(), http.MethodGet, "/api/v1/stats")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Uptime)
}

func TestRoutes_WithAPIKey_MissingKeyRejected(t *testing.T) {
	s := adminapi.New("127.0.0.1", 8088, "secret-key", nil)

	w := performRequest(s.Engine(), http.MethodGet, "/api/v1/health")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutes_WithAPIKey_ValidKeyAccepted(t *testing.T) {
	s := adminapi.New("127.0.0.1", 8088, "secret-key", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-API-Key", "secret-key")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_SwaggerEndpoint(t *testing.T) {
	s := adminapi.New("127.0.0.1", 8088, "", nil)

	w := performRequest(s.Engine(), http.MethodGet, "/swagger/index.html")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_NotFound(t *testing.T) {
	s := adminapi.New("127.0.0.1", 8088, "", nil)

	w := performRequest(s.Engine(), http.MethodGet, "/api/v1/nonexistent")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Shutdown_NeverStarted(t *testing.T) {
	s := adminapi.New("127.0.0.1", 0, "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, s.Shutdown(ctx))
}

func TestHandler_WiresStatsFunc(t *testing.T) {
	s := adminapi.New("127.0.0.1", 8088, "", nil)
	s.Handler().SetStatsFunc(func() handlers.TransceiverStatsSnapshot {
		return handlers.TransceiverStatsSnapshot{OpenPorts: 5}
	})

	w := performRequest(s.Engine(), http.MethodGet, "/api/v1/stats")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Transceiver.OpenPorts)
}
