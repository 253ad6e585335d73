package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/service"
	"github.com/noah-isme/rutas-academicas/pkg/response"
)

type enrollmentService interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, actor, studentID string, req service.CreateEnrollmentRequest) (*models.Enrollment, error)
	Update(ctx context.Context, actor, id string, req service.UpdateEnrollmentRequest) (*models.Enrollment, error)
	Delete(ctx context.Context, actor, id string) error
	CreateFromCurrentPlan(ctx context.Context, actor, studentID string) ([]models.Enrollment, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List a student's enrollments
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	enrollments, err := h.enrollments.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Create godoc
// @Summary Enroll a student in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.CreateEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enrollment, err := h.enrollments.Create(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// FromPlan godoc
// @Summary Enroll as planned in every planned item of the current plan
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Success 201 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /students/{id}/enrollments/from-plan [post]
func (h *EnrollmentHandler) FromPlan(c *gin.Context) {
	created, err := h.enrollments.CreateFromCurrentPlan(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, created, nil, map[string]interface{}{"created": len(created)})
}

// Update godoc
// @Summary Change enrollment status or grades
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.UpdateEnrollmentRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [patch]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	var req service.UpdateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enrollment, err := h.enrollments.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Delete godoc
// @Summary Delete an enrollment
// @Tags Enrollments
// @Param id path string true "Enrollment ID"
// @Success 204
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	if err := h.enrollments.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
