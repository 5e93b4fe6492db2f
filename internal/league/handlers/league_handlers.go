package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/common/middleware"
	"github.com/codeowl/platform/internal/league/models"
	"github.com/codeowl/platform/internal/league/services"
)

type LeagueHandler struct {
	service     *services.LeagueService
	adminSecret string
}

func NewLeagueHandler(service *services.LeagueService, adminSecret string) *LeagueHandler {
	return &LeagueHandler{service: service, adminSecret: adminSecret}
}

// Register mounts the league routes on a session-protected group.
func (h *LeagueHandler) Register(r gin.IRouter) {
	leagues := r.Group("/leagues")
	leagues.GET("/thresholds", h.GetThresholds)
	leagues.PUT("/thresholds/:tier", middleware.AdminRequired(h.adminSecret), h.UpdateThreshold)
	leagues.GET("/history", h.GetHistory)
	leagues.GET("/:tier/standings", h.GetStandings)
}

// GetThresholds returns the promotion and demotion table
func (h *LeagueHandler) GetThresholds(c *gin.Context) {
	thresholds, err := h.service.Thresholds(c.Request.Context())
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "thresholds": thresholds})
}

// UpdateThreshold replaces one tier's thresholds
func (h *LeagueHandler) UpdateThreshold(c *gin.Context) {
	var req services.ThresholdInput
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.JSONErrorResponse(c, errors.Validation("invalid request body", err.Error()))
		return
	}

	threshold, err := h.service.UpdateThreshold(c.Request.Context(), models.Tier(c.Param("tier")), req)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "threshold": threshold})
}

// GetStandings ranks a tier by weekly XP
func (h *LeagueHandler) GetStandings(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	tier := models.Tier(c.Param("tier"))
	standings, err := h.service.Standings(c.Request.Context(), tier, limit)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "league": tier, "standings": standings})
}

// GetHistory pages through the caller's promotions and demotions
func (h *LeagueHandler) GetHistory(c *gin.Context) {
	s, err := middleware.CurrentSession(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	page, err := queryInt(c, "page", 1)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	pageSize, err := queryInt(c, "page_size", 20)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	history, err := h.service.History(c.Request.Context(), s.UserID, page, pageSize)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": history})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.BadRequest("invalid " + key)
	}
	return v, nil
}
