package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeowl/platform/internal/common/middleware"
	"github.com/codeowl/platform/internal/profile/services"
)

type ProfileHandler struct {
	service *services.ProfileService
}

func NewProfileHandler(service *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// Register mounts the profile routes on a session-protected group.
func (h *ProfileHandler) Register(r gin.IRouter) {
	r.GET("/profile", h.GetProfile)
	r.POST("/profile/hearts/refill", h.RefillHearts)
	r.POST("/profile/streak-freezes", h.BuyStreakFreeze)
}

// GetProfile returns the caller's profile
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	s, err := middleware.CurrentSession(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	profile, err := h.service.Get(c.Request.Context(), s.UserID)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "profile": profile})
}

// RefillHearts spends gems to restore hearts
func (h *ProfileHandler) RefillHearts(c *gin.Context) {
	s, err := middleware.CurrentSession(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	profile, err := h.service.RefillHearts(c.Request.Context(), s.UserID)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "profile": profile})
}

// BuyStreakFreeze spends gems on a streak freeze
func (h *ProfileHandler) BuyStreakFreeze(c *gin.Context) {
	s, err := middleware.CurrentSession(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	profile, err := h.service.BuyStreakFreeze(c.Request.Context(), s.UserID)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "profile": profile})
}
