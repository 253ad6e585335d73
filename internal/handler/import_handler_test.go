package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/service"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
	"github.com/noah-isme/rutas-academicas/pkg/logger"
)

type importRunnerFake struct {
	body     string
	filename string
	opts     service.ImportOptions
	queued   bool
	reports  map[string]*models.ImportReport
}

func (f *importRunnerFake) RunSchedule(ctx context.Context, r io.Reader, filename string, opts service.ImportOptions) *models.ImportReport {
	data, _ := io.ReadAll(r)
	f.body, f.filename, f.opts = string(data), filename, opts
	return &models.ImportReport{ID: "r1", Status: models.ImportFinished, Summary: &models.ImportSummary{CreatedCourses: 3, Errors: []string{}}}
}

func (f *importRunnerFake) EnqueueSchedule(ctx context.Context, r io.Reader, filename string, opts service.ImportOptions) (*models.ImportReport, error) {
	f.queued = true
	f.opts = opts
	return &models.ImportReport{ID: "r2", Status: models.ImportQueued}, nil
}

func (f *importRunnerFake) Get(ctx context.Context, id string) (*models.ImportReport, error) {
	if report, ok := f.reports[id]; ok {
		return report, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "import report not found")
}

type studentImporterFake struct {
	actor string
	body  string
}

func (f *studentImporterFake) Import(ctx context.Context, actor string, r io.Reader, filename string) models.StudentImportSummary {
	data, _ := io.ReadAll(r)
	f.actor, f.body = actor, string(data)
	return models.StudentImportSummary{Created: 1, Errors: []string{"row 2: email is required"}}
}

func multipartRequest(t *testing.T, target, filename, content string) *http.Request {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(uploadField, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func importContext(req *http.Request) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Set(logger.ActorKey, "ana")
	return c, w
}

func TestImportHandlerScheduleSync(t *testing.T) {
	runs := &importRunnerFake{}
	h := NewImportHandler(runs, &studentImporterFake{}, 1<<20)
	c, w := importContext(multipartRequest(t, "/imports/schedule?dry_run=true", "cronograma.xlsx", "xlsx-bytes"))

	h.ImportSchedule(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xlsx-bytes", runs.body)
	assert.Equal(t, "cronograma.xlsx", runs.filename)
	assert.Equal(t, service.ImportOptions{Actor: "ana", DryRun: true}, runs.opts)

	var body struct {
		Data models.ImportReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Data.Summary.CreatedCourses)
}

func TestImportHandlerScheduleAsync(t *testing.T) {
	runs := &importRunnerFake{}
	h := NewImportHandler(runs, &studentImporterFake{}, 0)
	c, w := importContext(multipartRequest(t, "/imports/schedule?async=true", "cronograma.xlsx", "x"))

	h.ImportSchedule(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, runs.queued)
	assert.Contains(t, w.Body.String(), `"status":"queued"`)
}

func TestImportHandlerScheduleRequiresFile(t *testing.T) {
	h := NewImportHandler(&importRunnerFake{}, &studentImporterFake{}, 0)
	req := httptest.NewRequest(http.MethodPost, "/imports/schedule", nil)
	c, w := importContext(req)

	h.ImportSchedule(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandlerReport(t *testing.T) {
	runs := &importRunnerFake{reports: map[string]*models.ImportReport{"r1": {ID: "r1", Status: models.ImportRunning}}}
	h := NewImportHandler(runs, &studentImporterFake{}, 0)

	c, w := importContext(httptest.NewRequest(http.MethodGet, "/imports/r1", nil))
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	h.ImportReport(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"running"`)

	c, w = importContext(httptest.NewRequest(http.MethodGet, "/imports/nope", nil))
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	h.ImportReport(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportHandlerStudents(t *testing.T) {
	students := &studentImporterFake{}
	h := NewImportHandler(&importRunnerFake{}, students, 0)
	c, w := importContext(multipartRequest(t, "/imports/students", "alumnos.csv", "nombre,apellido,email\n"))

	h.ImportStudents(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ana", students.actor)
	assert.Equal(t, "nombre,apellido,email\n", students.body)
	assert.Contains(t, w.Body.String(), `"created":1`)
}
