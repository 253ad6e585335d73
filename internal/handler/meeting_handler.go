package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/service"
	"github.com/noah-isme/rutas-academicas/pkg/response"
)

type meetingService interface {
	Create(ctx context.Context, actor, studentID string, req service.CreateMeetingRequest) (*models.Meeting, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Meeting, error)
	Delete(ctx context.Context, actor, id string) error
}

// MeetingHandler exposes advising meeting endpoints.
type MeetingHandler struct {
	meetings meetingService
}

func NewMeetingHandler(meetings meetingService) *MeetingHandler {
	return &MeetingHandler{meetings: meetings}
}

// List godoc
// @Summary List a student's meetings, oldest first
// @Tags Meetings
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/meetings [get]
func (h *MeetingHandler) List(c *gin.Context) {
	meetings, err := h.meetings.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, meetings, nil)
}

// Create godoc
// @Summary Record a meeting
// @Tags Meetings
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.CreateMeetingRequest true "Meeting payload"
// @Success 201 {object} response.Envelope
// @Router /students/{id}/meetings [post]
func (h *MeetingHandler) Create(c *gin.Context) {
	var req service.CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	meeting, err := h.meetings.Create(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, meeting)
}

// Delete godoc
// @Summary Delete a meeting
// @Tags Meetings
// @Param id path string true "Meeting ID"
// @Success 204
// @Router /meetings/{id} [delete]
func (h *MeetingHandler) Delete(c *gin.Context) {
	if err := h.meetings.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
