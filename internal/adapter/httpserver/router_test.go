package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishnet-client/fishnet/internal/config"
)

func TestBuildRouter_Healthz(t *testing.T) {
	r := BuildRouter(config.Config{}, RunInfo{Version: "test", Cores: 1, StartedAt: time.Now()})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRouter_MetricsServed(t *testing.T) {
	r := BuildRouter(config.Config{}, RunInfo{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRouter_StatsRequiresAuthWhenEnabled(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	cfg := config.Config{
		AdminUsername:      "ops",
		AdminPasswordHash:  hash,
		AdminSessionSecret: "s3cr3t",
	}
	r := BuildRouter(cfg, RunInfo{StartedAt: time.Now()})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req2.SetBasicAuth("ops", "hunter2")
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestBuildRouter_StatsAbsentWhenAdminDisabled(t *testing.T) {
	r := BuildRouter(config.Config{}, RunInfo{})
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
