package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeowl/platform/internal/common/database/dbtest"
	"github.com/codeowl/platform/internal/common/health"
)

func setupTestRouter(checker *health.HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHealthHandler(checker).Register(router)
	return router
}

func TestHealth_Healthy(t *testing.T) {
	checker := health.NewHealthChecker(dbtest.Open(t), "test")
	checker.AddProbe("sessions", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Healthy: true, Details: map[string]int{"live": 3}}
	})
	router := setupTestRouter(checker)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var status health.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, health.StatusHealthy, status.Status)
	assert.Contains(t, status.Checks, "database")
	assert.Contains(t, status.Checks, "sessions")
	assert.True(t, checker.IsHealthy())
}

func TestHealth_DegradedProbe(t *testing.T) {
	checker := health.NewHealthChecker(dbtest.Open(t), "test")
	checker.AddProbe("league_runs", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Healthy: false, Error: "no run in 8 days"}
	})
	router := setupTestRouter(checker)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, checker.IsHealthy())
}

func TestReadiness(t *testing.T) {
	ready := setupTestRouter(health.NewHealthChecker(dbtest.Open(t), "test"))
	w := httptest.NewRecorder()
	ready.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/readiness", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	notReady := setupTestRouter(health.NewHealthChecker(nil, "test"))
	w = httptest.NewRecorder()
	notReady.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/readiness", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLivenessAndMetrics(t *testing.T) {
	router := setupTestRouter(health.NewHealthChecker(nil, "test"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/liveness", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"alive":true}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutine_count")
}
