package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/service"
	"github.com/noah-isme/rutas-academicas/pkg/response"
)

type planService interface {
	ListVersions(ctx context.Context, studentID string) ([]models.PlanVersion, error)
	CreateVersion(ctx context.Context, actor, studentID string, req service.PlanVersionRequest) (*models.PlanVersion, error)
	CloseAndSucceed(ctx context.Context, actor, studentID string, req service.PlanVersionRequest) (*models.PlanVersion, error)
	AddItem(ctx context.Context, actor, planID string, req service.AddPlanItemRequest) (*models.StudentPlanItem, error)
	RemoveItem(ctx context.Context, actor, planID, itemID string) error
	ListItems(ctx context.Context, planID string) ([]models.PlanItemDetail, error)
}

// PlanHandler exposes versioned study plans.
type PlanHandler struct {
	plans planService
}

func NewPlanHandler(plans planService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// ListVersions godoc
// @Summary List plan versions, newest first
// @Tags Plans
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/plans [get]
func (h *PlanHandler) ListVersions(c *gin.Context) {
	versions, err := h.plans.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// CreateVersion godoc
// @Summary Open a new plan version
// @Tags Plans
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.PlanVersionRequest false "Comment"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/plans [post]
func (h *PlanHandler) CreateVersion(c *gin.Context) {
	req, ok := bindPlanVersion(c)
	if !ok {
		return
	}
	version, err := h.plans.CreateVersion(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, version)
}

// CloseAndSucceed godoc
// @Summary Close the open version and open its successor
// @Tags Plans
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.PlanVersionRequest false "Comment for the successor"
// @Success 201 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /students/{id}/plans/close [post]
func (h *PlanHandler) CloseAndSucceed(c *gin.Context) {
	req, ok := bindPlanVersion(c)
	if !ok {
		return
	}
	version, err := h.plans.CloseAndSucceed(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, version)
}

// ListItems godoc
// @Summary List the items of a plan version
// @Tags Plans
// @Produce json
// @Param id path string true "Plan version ID"
// @Success 200 {object} response.Envelope
// @Router /plans/{id}/items [get]
func (h *PlanHandler) ListItems(c *gin.Context) {
	items, err := h.plans.ListItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// AddItem godoc
// @Summary Add a course to an open plan version
// @Tags Plans
// @Accept json
// @Produce json
// @Param id path string true "Plan version ID"
// @Param payload body service.AddPlanItemRequest true "Item payload"
// @Success 201 {object} response.Envelope
// @Router /plans/{id}/items [post]
func (h *PlanHandler) AddItem(c *gin.Context) {
	var req service.AddPlanItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	item, err := h.plans.AddItem(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// RemoveItem godoc
// @Summary Remove a course from an open plan version
// @Tags Plans
// @Param id path string true "Plan version ID"
// @Param item_id path string true "Plan item ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /plans/{id}/items/{item_id} [delete]
func (h *PlanHandler) RemoveItem(c *gin.Context) {
	if err := h.plans.RemoveItem(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("item_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// The comment body is optional, so an empty request is accepted.
func bindPlanVersion(c *gin.Context) (service.PlanVersionRequest, bool) {
	var req service.PlanVersionRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return req, false
	}
	return req, true
}
