package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/service"
	"github.com/noah-isme/rutas-academicas/pkg/response"
)

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, actor string, req service.CreateStudentRequest) (*models.Student, error)
	Update(ctx context.Context, actor, id string, req service.UpdateStudentRequest) (*models.Student, error)
	Delete(ctx context.Context, actor, id string) error
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students studentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or email"
// @Param program query string false "MBA or EMBA"
// @Param cohort query string false "Cohort"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		Program:   strings.ToUpper(strings.TrimSpace(c.Query("program"))),
		Cohort:    strings.TrimSpace(c.Query("cohort")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "limit", 50),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}

	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Create student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	student, err := h.students.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	student, err := h.students.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Soft-delete student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 204
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
