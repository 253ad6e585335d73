package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/service"
)

type probeFake struct {
	err error
}

func (p probeFake) Ping(ctx context.Context) error { return p.err }

func (p probeFake) HealthCounts(ctx context.Context) (*models.HealthCounts, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &models.HealthCounts{Courses: 12, Students: 3}, nil
}

func systemRouter(probe healthProbe) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(service.NewMetricsService(), probe)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", h.Prometheus)
	return router
}

func TestHealthReportsCounts(t *testing.T) {
	w := httptest.NewRecorder()
	systemRouter(probeFake{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"courses":12`)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
}

func TestHealthDegradedWithoutDatabase(t *testing.T) {
	w := httptest.NewRecorder()
	systemRouter(probeFake{err: errors.New("down")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestReady(t *testing.T) {
	w := httptest.NewRecorder()
	systemRouter(probeFake{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	systemRouter(probeFake{err: errors.New("down")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPrometheusEndpoint(t *testing.T) {
	w := httptest.NewRecorder()
	systemRouter(probeFake{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutines_total")
}
