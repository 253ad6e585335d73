package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/service"
)

type healthProbe interface {
	Ping(ctx context.Context) error
	HealthCounts(ctx context.Context) (*models.HealthCounts, error)
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	probe   healthProbe
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, probe healthProbe) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, probe: probe}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health godoc
// @Summary Liveness with entity counts
// @Tags System
// @Produce json
// @Success 200 {object} models.Health
// @Failure 503 {object} models.Health
// @Router /health [get]
func (h *MetricsHandler) Health(c *gin.Context) {
	snapshot := h.metrics.Snapshot()
	health := models.Health{Status: "ok", Database: "ok", System: &snapshot}
	counts, err := h.probe.HealthCounts(c.Request.Context())
	if err != nil {
		health.Status = "degraded"
		health.Database = "unavailable"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	health.Counts = counts
	c.JSON(http.StatusOK, health)
}

// Ready godoc
// @Summary Readiness
// @Tags System
// @Produce json
// @Success 200 {object} models.Health
// @Failure 503 {object} models.Health
// @Router /ready [get]
func (h *MetricsHandler) Ready(c *gin.Context) {
	if err := h.probe.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, models.Health{Status: "not_ready", Database: "unavailable"})
		return
	}
	c.JSON(http.StatusOK, models.Health{Status: "ready", Database: "ok"})
}
