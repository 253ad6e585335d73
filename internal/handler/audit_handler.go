package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/pkg/response"
)

type changeLogService interface {
	List(ctx context.Context, filter models.ChangeLogFilter) ([]models.ChangeLogEntry, *models.Pagination, error)
	Stats(ctx context.Context, filter models.ChangeLogFilter) (*models.ChangeLogStats, error)
}

// AuditHandler exposes the change log.
type AuditHandler struct {
	changes changeLogService
}

func NewAuditHandler(changes changeLogService) *AuditHandler {
	return &AuditHandler{changes: changes}
}

// List godoc
// @Summary List change log entries, newest first
// @Tags Audit
// @Produce json
// @Param from query string false "From date or timestamp"
// @Param to query string false "To date or timestamp, inclusive"
// @Param actor query string false "Actor contains"
// @Param entity query string false "Entity contains"
// @Param entity_id query string false "Entity ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter, err := changeLogFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, pagination, err := h.changes.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Stats godoc
// @Summary Change log counts by entity and actor
// @Tags Audit
// @Produce json
// @Param from query string false "From date or timestamp"
// @Param to query string false "To date or timestamp, inclusive"
// @Success 200 {object} response.Envelope
// @Router /audit/stats [get]
func (h *AuditHandler) Stats(c *gin.Context) {
	filter, err := changeLogFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.changes.Stats(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

func changeLogFilter(c *gin.Context) (models.ChangeLogFilter, error) {
	from, err := queryTime(c, "from", false)
	if err != nil {
		return models.ChangeLogFilter{}, err
	}
	to, err := queryTime(c, "to", true)
	if err != nil {
		return models.ChangeLogFilter{}, err
	}
	return models.ChangeLogFilter{
		From:     from,
		To:       to,
		Actor:    strings.TrimSpace(c.Query("actor")),
		Entity:   strings.TrimSpace(c.Query("entity")),
		EntityID: strings.TrimSpace(c.Query("entity_id")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "limit", 50),
	}, nil
}
