package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeowl/platform/internal/common/auth"
	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/common/middleware"
	profilemodels "github.com/codeowl/platform/internal/profile/models"
	"github.com/codeowl/platform/internal/session"
)

// Bootstrapper creates the profile of a user at first login.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, userID, username string) (*profilemodels.UserProfile, error)
}

type LoginRequest struct {
	Token string `json:"token"`
}

type SessionHandler struct {
	sessions *session.Manager
	profiles Bootstrapper
}

func NewSessionHandler(sessions *session.Manager, profiles Bootstrapper) *SessionHandler {
	return &SessionHandler{sessions: sessions, profiles: profiles}
}

// RegisterPublic mounts login, which needs no session.
func (h *SessionHandler) RegisterPublic(r gin.IRouter) {
	r.POST("/sessions", h.Login)
}

// Register mounts the routes that act on the caller's session.
func (h *SessionHandler) Register(r gin.IRouter) {
	r.DELETE("/sessions/current", h.Logout)
}

// Login exchanges an auth provider token for a session. The token comes
// from the Authorization header or the request body.
func (h *SessionHandler) Login(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			middleware.JSONErrorResponse(c, errors.Validation("invalid request body", err.Error()))
			return
		}
		token = req.Token
	}
	if token == "" {
		middleware.JSONErrorResponse(c, errors.Unauthorized("missing token"))
		return
	}

	s, err := h.sessions.Login(token)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	profile, err := h.profiles.Bootstrap(c.Request.Context(), s.UserID, s.Username)
	if err != nil {
		_ = h.sessions.Logout(c.Request.Context(), s.ID)
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "session": s, "profile": profile})
}

// Logout destroys the caller's session and exits its lesson runs
func (h *SessionHandler) Logout(c *gin.Context) {
	s, err := middleware.CurrentSession(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), s.ID); err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
