package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeowl/platform/internal/common/health"
)

// HealthHandler manages health check endpoints
type HealthHandler struct {
	checker *health.HealthChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker *health.HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Register mounts the health routes on r.
func (h *HealthHandler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/health/readiness", h.Readiness)
	r.GET("/health/liveness", h.Liveness)
	r.GET("/health/metrics", h.Metrics)
}

// Health returns comprehensive health status
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status := h.checker.Check(c.Request.Context())
	code := http.StatusOK
	if status.Status != health.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// Readiness returns readiness status
// GET /health/readiness
func (h *HealthHandler) Readiness(c *gin.Context) {
	if h.checker.IsReady(c.Request.Context()) {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}

	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}

// Liveness returns liveness status
// GET /health/liveness
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alive": h.checker.IsAlive()})
}

// Metrics returns current system metrics
// GET /health/metrics
func (h *HealthHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.GetMetrics())
}
