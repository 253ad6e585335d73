package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/pkg/response"
)

type courseService interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Course, error)
}

// CourseHandler exposes the imported catalog.
type CourseHandler struct {
	courses courseService
}

func NewCourseHandler(courses courseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List catalog courses
// @Tags Courses
// @Produce json
// @Param search query string false "Course id or subject contains"
// @Param program query string false "Program"
// @Param year query int false "Year"
// @Param orientation query string false "Orientation"
// @Param subject_type query string false "Subject type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		Search:      strings.TrimSpace(c.Query("search")),
		Program:     strings.TrimSpace(c.Query("program")),
		Year:        queryIntPtr(c, "year"),
		Orientation: strings.TrimSpace(c.Query("orientation")),
		SubjectType: strings.TrimSpace(c.Query("subject_type")),
		Page:        queryInt(c, "page", 1),
		PageSize:    queryInt(c, "limit", 50),
	}
	courses, pagination, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get a catalog course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}
