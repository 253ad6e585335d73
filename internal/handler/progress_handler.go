package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/pkg/response"
)

type progressService interface {
	StudentProgress(ctx context.Context, studentID string) (*models.StudentProgress, error)
	AggregatedMetricsByCohort(ctx context.Context, cohort, electiveType string) (models.GroupMetrics, error)
	AggregatedMetricsByProgram(ctx context.Context, program, electiveType string) (models.GroupMetrics, error)
	CourseDemand(ctx context.Context, filter models.CourseDemandFilter) ([]models.CourseDemand, error)
	ModuleDemand(ctx context.Context, filter models.CourseDemandFilter) ([]models.ModuleDemand, error)
	StudentRiskRoster(ctx context.Context, filter models.RiskRosterFilter) ([]models.RiskRosterEntry, error)
}

// ProgressHandler serves the elective rule views.
type ProgressHandler struct {
	progress progressService
}

func NewProgressHandler(progress progressService) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// StudentProgress godoc
// @Summary Progress of one student
// @Description Current plan, completed electives per orientation, the concentration rule, risk and alerts.
// @Tags Progress
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/progress [get]
func (h *ProgressHandler) StudentProgress(c *gin.Context) {
	progress, err := h.progress.StudentProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Cohort godoc
// @Summary Rule compliance for a cohort
// @Tags Progress
// @Produce json
// @Param cohort path string true "Cohort"
// @Param elective_type query string false "Subject type counted as elective"
// @Success 200 {object} response.Envelope
// @Router /metrics/cohorts/{cohort} [get]
func (h *ProgressHandler) Cohort(c *gin.Context) {
	metrics, err := h.progress.AggregatedMetricsByCohort(c.Request.Context(), c.Param("cohort"), strings.TrimSpace(c.Query("elective_type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, metrics, nil)
}

// Program godoc
// @Summary Rule compliance for a program
// @Tags Progress
// @Produce json
// @Param program path string true "MBA or EMBA"
// @Param elective_type query string false "Subject type counted as elective"
// @Success 200 {object} response.Envelope
// @Router /metrics/programs/{program} [get]
func (h *ProgressHandler) Program(c *gin.Context) {
	program := strings.ToUpper(c.Param("program"))
	metrics, err := h.progress.AggregatedMetricsByProgram(c.Request.Context(), program, strings.TrimSpace(c.Query("elective_type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, metrics, nil)
}

// CourseDemand godoc
// @Summary Open plans listing each course as planned
// @Tags Reports
// @Produce json
// @Param program query string false "Program"
// @Param year query int false "Year"
// @Param orientation query string false "Orientation"
// @Success 200 {object} response.Envelope
// @Router /reports/course-demand [get]
func (h *ProgressHandler) CourseDemand(c *gin.Context) {
	demand, err := h.progress.CourseDemand(c.Request.Context(), demandFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, demand, nil)
}

// ModuleDemand godoc
// @Summary Planned items grouped by module and start month
// @Tags Reports
// @Produce json
// @Param program query string false "Program"
// @Param year query int false "Year"
// @Param orientation query string false "Orientation"
// @Success 200 {object} response.Envelope
// @Router /reports/module-demand [get]
func (h *ProgressHandler) ModuleDemand(c *gin.Context) {
	demand, err := h.progress.ModuleDemand(c.Request.Context(), demandFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, demand, nil)
}

// RiskRoster godoc
// @Summary Rule and risk level of every active student
// @Description Widest gap first. level accepts a comma separated list or repeats.
// @Tags Reports
// @Produce json
// @Param program query string false "Program"
// @Param cohort query string false "Cohort"
// @Param level query string false "low, medium or high"
// @Param elective_type query string false "Subject type counted as elective"
// @Success 200 {object} response.Envelope
// @Router /reports/risk [get]
func (h *ProgressHandler) RiskRoster(c *gin.Context) {
	filter := models.RiskRosterFilter{
		Program:      strings.TrimSpace(c.Query("program")),
		Cohort:       strings.TrimSpace(c.Query("cohort")),
		ElectiveType: strings.TrimSpace(c.Query("elective_type")),
	}
	for _, raw := range c.QueryArray("level") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Levels = append(filter.Levels, models.RiskLevel(part))
			}
		}
	}

	roster, err := h.progress.StudentRiskRoster(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

func demandFilter(c *gin.Context) models.CourseDemandFilter {
	return models.CourseDemandFilter{
		Program:     strings.TrimSpace(c.Query("program")),
		Year:        queryIntPtr(c, "year"),
		Orientation: strings.TrimSpace(c.Query("orientation")),
	}
}
