package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/service"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
	"github.com/noah-isme/rutas-academicas/pkg/response"
)

const uploadField = "file"

type importRunner interface {
	RunSchedule(ctx context.Context, r io.Reader, filename string, opts service.ImportOptions) *models.ImportReport
	EnqueueSchedule(ctx context.Context, r io.Reader, filename string, opts service.ImportOptions) (*models.ImportReport, error)
	Get(ctx context.Context, id string) (*models.ImportReport, error)
}

type studentImporter interface {
	Import(ctx context.Context, actor string, r io.Reader, filename string) models.StudentImportSummary
}

// ImportHandler accepts spreadsheet uploads.
type ImportHandler struct {
	runs      importRunner
	students  studentImporter
	maxUpload int64
}

func NewImportHandler(runs importRunner, students studentImporter, maxUpload int64) *ImportHandler {
	return &ImportHandler{runs: runs, students: students, maxUpload: maxUpload}
}

// ImportSchedule godoc
// @Summary Import the consolidated schedule workbook
// @Description Upserts courses and their source rows from the CronogramaConsolidado sheet. With async=true the upload is queued and a report id is returned.
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "xlsx workbook"
// @Param dry_run query bool false "Validate and roll back"
// @Param async query bool false "Queue the import"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /imports/schedule [post]
func (h *ImportHandler) ImportSchedule(c *gin.Context) {
	file, filename, err := h.upload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	opts := service.ImportOptions{Actor: actorFromContext(c), DryRun: queryBool(c, "dry_run")}
	if queryBool(c, "async") {
		report, err := h.runs.EnqueueSchedule(c.Request.Context(), file, filename, opts)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, report)
		return
	}
	report := h.runs.RunSchedule(c.Request.Context(), file, filename, opts)
	response.JSON(c, http.StatusOK, report, nil)
}

// ImportReport godoc
// @Summary Get an import report
// @Tags Imports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Router /imports/{id} [get]
func (h *ImportHandler) ImportReport(c *gin.Context) {
	report, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ImportStudents godoc
// @Summary Bulk create students from CSV or xlsx
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or xlsx with nombre, apellido, email, programa"
// @Success 200 {object} response.Envelope
// @Router /imports/students [post]
func (h *ImportHandler) ImportStudents(c *gin.Context) {
	file, filename, err := h.upload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	summary := h.students.Import(c.Request.Context(), actorFromContext(c), file, filename)
	response.JSON(c, http.StatusOK, summary, nil)
}

func (h *ImportHandler) upload(c *gin.Context) (io.ReadCloser, string, error) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
	header, err := c.FormFile(uploadField)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file upload is required")
	}
	file, err := header.Open()
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload")
	}
	return file, header.Filename, nil
}
