package models

import "time"

// ImportSummary is the report of one schedule import. Counts are zero
// whenever nothing was persisted.
type ImportSummary struct {
	CreatedCourses int      `json:"created_courses"`
	UpdatedCourses int      `json:"updated_courses"`
	CreatedSources int      `json:"created_sources"`
	UpdatedSources int      `json:"updated_sources"`
	Errors         []string `json:"errors"`
}

// OK reports whether the import finished without any error.
func (s ImportSummary) OK() bool { return len(s.Errors) == 0 }

type ImportStatus string

const (
	ImportQueued   ImportStatus = "queued"
	ImportRunning  ImportStatus = "running"
	ImportFinished ImportStatus = "finished"
)

// ImportReport is what the report store keeps per run.
type ImportReport struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Status     ImportStatus   `json:"status"`
	Filename   string         `json:"filename,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	DryRun     bool           `json:"dry_run"`
	Summary    *ImportSummary `json:"summary,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Pagination describes a page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
