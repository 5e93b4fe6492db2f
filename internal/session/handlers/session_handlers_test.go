package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeowl/platform/internal/common/database/dbtest"
	"github.com/codeowl/platform/internal/common/middleware"
	profilemodels "github.com/codeowl/platform/internal/profile/models"
	profilerepo "github.com/codeowl/platform/internal/profile/repository"
	profileservices "github.com/codeowl/platform/internal/profile/services"
	"github.com/codeowl/platform/internal/session"
	"github.com/codeowl/platform/pkg/config"
)

type env struct {
	router   *gin.Engine
	verifier *session.Verifier
	sessions *session.Manager
	ended    []string
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t, profilemodels.All()...)
	profiles := profileservices.NewProfileService(profilerepo.NewProfileRepository(db), config.Default().Economy, nil)

	e := &env{verifier: session.NewVerifier("test-secret", "")}
	e.sessions = session.NewManager(e.verifier, time.Hour)
	e.sessions.OnEnd(func(_ context.Context, s *session.Session) { e.ended = append(e.ended, s.ID) })

	h := NewSessionHandler(e.sessions, profiles)
	e.router = gin.New()
	e.router.Use(middleware.ErrorHandler())
	v1 := e.router.Group("/api/v1")
	h.RegisterPublic(v1)
	h.Register(v1.Group("", middleware.SessionRequired(e.sessions)))
	return e
}

type loginResponse struct {
	Success bool                      `json:"success"`
	Session session.Session           `json:"session"`
	Profile profilemodels.UserProfile `json:"profile"`
}

func TestLoginAndLogout(t *testing.T) {
	e := setup(t)
	token, err := e.verifier.Sign("user-1", "ana", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Session.ID)
	assert.Equal(t, "user-1", resp.Profile.UserID)
	assert.Equal(t, 5, resp.Profile.Hearts)
	assert.Zero(t, resp.Profile.Gems)
	assert.Equal(t, 1, e.sessions.Count())

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/current", nil)
	req.Header.Set(middleware.SessionHeader, resp.Session.ID)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{resp.Session.ID}, e.ended)
	assert.Zero(t, e.sessions.Count())

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/current", nil)
	req.Header.Set(middleware.SessionHeader, resp.Session.ID)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_TokenInBody(t *testing.T) {
	e := setup(t)
	token, err := e.verifier.Sign("user-2", "ben", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"token":"`+token+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestLogin_Rejected(t *testing.T) {
	e := setup(t)
	other, err := session.NewVerifier("other-secret", "").Sign("user-1", "ana", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		{"wrong signature", "Bearer " + other},
		{"garbage", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			e.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
	assert.Zero(t, e.sessions.Count())
}
