package models

import "time"

// SystemMetrics is a point-in-time digest of the process counters.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ImportsTotal             uint64    `json:"imports_total"`
	ImportsFailed            uint64    `json:"imports_failed"`
	ReportLookups            uint64    `json:"report_lookups"`
	ReportHitRatio           float64   `json:"report_hit_ratio"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// Health is the body of the health endpoint.
type Health struct {
	Status   string         `json:"status"`
	Database string         `json:"database"`
	Counts   *HealthCounts  `json:"counts,omitempty"`
	System   *SystemMetrics `json:"system,omitempty"`
}
