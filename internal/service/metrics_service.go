package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/rutas-academicas/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for the health endpoint.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	importRuns      *prometheus.CounterVec
	importRows      *prometheus.CounterVec
	importDuration  prometheus.Histogram
	reportLookups   *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	importCount          uint64
	importFailedCount    uint64
	reportHitCount       uint64
	reportMissCount      uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	importRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_imports_total",
		Help: "Schedule imports by outcome",
	}, []string{"outcome"})

	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_import_rows_total",
		Help: "Rows persisted by schedule imports, by outcome",
	}, []string{"outcome"})

	importDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_import_duration_seconds",
		Help:    "Wall time of schedule imports",
		Buckets: prometheus.DefBuckets,
	})

	reportLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_report_lookups_total",
		Help: "Import report lookups by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, importRuns, importRows, importDuration, reportLookups, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		importRuns:      importRuns,
		importRows:      importRows,
		importDuration:  importDuration,
		reportLookups:   reportLookups,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveImport records the outcome of one schedule import.
func (m *MetricsService) ObserveImport(summary models.ImportSummary, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !summary.OK() {
		outcome = "failed"
		atomic.AddUint64(&m.importFailedCount, 1)
	}
	atomic.AddUint64(&m.importCount, 1)
	m.importRuns.WithLabelValues(outcome).Inc()
	m.importDuration.Observe(duration.Seconds())
	m.importRows.WithLabelValues("course_created").Add(float64(summary.CreatedCourses))
	m.importRows.WithLabelValues("course_updated").Add(float64(summary.UpdatedCourses))
	m.importRows.WithLabelValues("source_created").Add(float64(summary.CreatedSources))
	m.importRows.WithLabelValues("source_updated").Add(float64(summary.UpdatedSources))
	m.importRows.WithLabelValues("error").Add(float64(len(summary.Errors)))
}

// RecordReportLookup counts report store hits and misses.
func (m *MetricsService) RecordReportLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.reportLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.reportHitCount, 1)
		return
	}
	m.reportLookups.WithLabelValues("miss").Inc()
	atomic.AddUint64(&m.reportMissCount, 1)
}

// Snapshot returns aggregated metrics suitable for the health endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	hits := atomic.LoadUint64(&m.reportHitCount)
	misses := atomic.LoadUint64(&m.reportMissCount)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var hitRatio float64
	if hits+misses > 0 {
		hitRatio = float64(hits) / float64(hits+misses)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		ImportsTotal:             atomic.LoadUint64(&m.importCount),
		ImportsFailed:            atomic.LoadUint64(&m.importFailedCount),
		ReportLookups:            hits + misses,
		ReportHitRatio:           hitRatio,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
