package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/common/middleware"
	"github.com/codeowl/platform/internal/lesson/engine"
	"github.com/codeowl/platform/internal/lesson/services"
	"github.com/codeowl/platform/internal/session"
)

// StartRunRequest is the body of POST /lessons/:id/runs.
type StartRunRequest struct {
	Practice bool `json:"practice"`
}

type LessonHandler struct {
	catalog *services.CatalogService
	runner  *services.Runner
}

func NewLessonHandler(catalog *services.CatalogService, runner *services.Runner) *LessonHandler {
	return &LessonHandler{catalog: catalog, runner: runner}
}

// Register mounts catalog and run routes on a session-protected group.
func (h *LessonHandler) Register(r gin.IRouter) {
	catalog := r.Group("/catalog")
	{
		catalog.GET("/languages", h.ListLanguages)
		catalog.GET("/languages/:id/units", h.ListUnits)
		catalog.GET("/lessons/:id", h.GetLesson)
	}

	r.POST("/lessons/:id/runs", h.StartRun)

	runs := r.Group("/runs/:id")
	{
		runs.GET("", h.GetRun)
		runs.POST("/select", h.Select)
		runs.POST("/check", h.Check)
		runs.POST("/continue", h.Continue)
		runs.POST("/back", h.Back)
		runs.POST("/exit", h.Exit)
	}
}

func idParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, errors.BadRequest("invalid id")
	}
	return uint(id), nil
}

// ListLanguages lists the catalog languages
func (h *LessonHandler) ListLanguages(c *gin.Context) {
	languages, err := h.catalog.Languages(c.Request.Context())
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "languages": languages})
}

// ListUnits lists a language's units with their lessons
func (h *LessonHandler) ListUnits(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	units, err := h.catalog.Units(c.Request.Context(), id)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "units": units})
}

// GetLesson returns a lesson without its answers
func (h *LessonHandler) GetLesson(c *gin.Context) {
	s, err := middleware.CurrentSession(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	id, err := idParam(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	lesson, err := h.catalog.Lesson(c.Request.Context(), s.UserID, id)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "lesson": lesson})
}

// StartRun opens a lesson run
func (h *LessonHandler) StartRun(c *gin.Context) {
	s, err := middleware.CurrentSession(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	id, err := idParam(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		middleware.JSONErrorResponse(c, errors.Validation("invalid request", err.Error()))
		return
	}

	run, err := h.runner.Start(c.Request.Context(), s, id, req.Practice)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "run": run})
}

// GetRun returns the current run view
func (h *LessonHandler) GetRun(c *gin.Context) {
	s, err := middleware.CurrentSession(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	run, err := h.runner.Get(s, c.Param("id"))
	respond(c, run, err)
}

// Select records the learner's pending answer
func (h *LessonHandler) Select(c *gin.Context) {
	s, err := middleware.CurrentSession(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	var answer engine.Answer
	if err := c.ShouldBindJSON(&answer); err != nil {
		middleware.JSONErrorResponse(c, errors.Validation("invalid answer", err.Error()))
		return
	}

	run, err := h.runner.Select(c.Request.Context(), s, c.Param("id"), answer)
	respond(c, run, err)
}

// Check grades the pending answer
func (h *LessonHandler) Check(c *gin.Context) {
	h.step(c, h.runner.Check)
}

// Continue advances past a checked question
func (h *LessonHandler) Continue(c *gin.Context) {
	h.step(c, h.runner.Continue)
}

// Back returns to the previous question
func (h *LessonHandler) Back(c *gin.Context) {
	h.step(c, h.runner.Back)
}

// Exit leaves the run, saving progress
func (h *LessonHandler) Exit(c *gin.Context) {
	h.step(c, h.runner.Exit)
}

type stepFunc func(ctx context.Context, s *session.Session, runID string) (*services.RunView, error)

func (h *LessonHandler) step(c *gin.Context, fn stepFunc) {
	s, err := middleware.CurrentSession(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	run, err := fn(c.Request.Context(), s, c.Param("id"))
	respond(c, run, err)
}

func respond(c *gin.Context, run *services.RunView, err error) {
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "run": run})
}
