package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeowl/platform/internal/common/database/dbtest"
	"github.com/codeowl/platform/internal/common/middleware"
	"github.com/codeowl/platform/internal/profile/models"
	"github.com/codeowl/platform/internal/profile/repository"
	"github.com/codeowl/platform/internal/profile/services"
	"github.com/codeowl/platform/internal/session"
	"github.com/codeowl/platform/pkg/config"
)

func setupRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t, models.All()...)
	svc := services.NewProfileService(repository.NewProfileRepository(db), config.Default().Economy, nil)

	verifier := session.NewVerifier("test-secret", "")
	token, err := verifier.Sign("user-1", "ana", time.Hour)
	require.NoError(t, err)
	sessions := session.NewManager(verifier, time.Hour)
	s, err := sessions.Login(token)
	require.NoError(t, err)
	_, err = svc.Bootstrap(context.Background(), s.UserID, s.Username)
	require.NoError(t, err)

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	api := router.Group("/api/v1", middleware.SessionRequired(sessions))
	NewProfileHandler(svc).Register(api)
	return router, s.ID
}

func TestGetProfile(t *testing.T) {
	router, sid := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.Header.Set(middleware.SessionHeader, sid)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool               `json:"success"`
		Profile models.UserProfile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "user-1", body.Profile.UserID)
	assert.Equal(t, models.MaxHearts, body.Profile.Hearts)
}

func TestProfileRoutes_RequireSession(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefillHearts_FullIsConflict(t *testing.T) {
	router, sid := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/profile/hearts/refill", nil)
	req.Header.Set(middleware.SessionHeader, sid)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT")
}

func TestBuyStreakFreeze_NeedsGems(t *testing.T) {
	router, sid := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/profile/streak-freezes", nil)
	req.Header.Set(middleware.SessionHeader, sid)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
