package models

import (
	"strings"
	"time"
)

// NoOrientation buckets completed electives whose course has no orientation.
const NoOrientation = "sin_orientacion"

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// OrientationCount is the number of completed electives in one orientation.
type OrientationCount struct {
	Orientation string `db:"orientation" json:"orientation"`
	Count       int    `db:"count" json:"count"`
}

// RuleResult is the outcome of the concentration rule for one student.
type RuleResult struct {
	Passes          bool    `json:"passes"`
	BestOrientation *string `json:"best_orientation"`
	BestCount       int     `json:"best_count"`
}

type RiskScore struct {
	TotalCompleted  int       `json:"total_completed"`
	Gap             int       `json:"gap"`
	BestOrientation *string   `json:"best_orientation"`
	BestCount       int       `json:"best_count"`
	Level           RiskLevel `json:"level"`
}

// GroupMetrics aggregates rule compliance over a cohort or program.
type GroupMetrics struct {
	Group                 string  `json:"group"`
	TotalStudents         int     `json:"total_students"`
	Compliant             int     `json:"rule_5_8_compliant"`
	ComplianceRate        float64 `json:"rule_5_8_compliance_rate"`
	AvgElectivesCompleted float64 `json:"avg_electives_completed"`
}

// StudentProgress bundles everything the progress view shows for one student.
type StudentProgress struct {
	StudentID          string             `json:"student_id"`
	CurrentPlan        *PlanVersion       `json:"current_plan"`
	Electives          []OrientationCount `json:"electives_by_orientation"`
	CompletedElectives int                `json:"completed_electives"`
	TargetElectives    int                `json:"target_electives"`
	Rule               RuleResult         `json:"rule"`
	Risk               RiskScore          `json:"risk"`
	Alerts             []Alert            `json:"alerts"`
}

type AlertKind string

const (
	AlertDuplicateEnrollment AlertKind = "duplicate_enrollment"
	AlertOffPlanCompletion   AlertKind = "completed_outside_plan"
	AlertProjectedShortfall  AlertKind = "projected_shortfall"
)

type Alert struct {
	Kind     AlertKind `json:"kind"`
	Message  string    `json:"message"`
	CourseID string    `json:"course_id,omitempty"`
}

// CourseDemandFilter narrows the demand report.
type CourseDemandFilter struct {
	Program     string
	Year        *int
	Orientation string
}

// CourseDemand counts open plans listing a course as planned.
type CourseDemand struct {
	CourseRef   string  `db:"course_ref" json:"course_ref"`
	CourseID    string  `db:"course_id" json:"course_id"`
	Subject     *string `db:"subject" json:"subject,omitempty"`
	Program     *string `db:"program" json:"program,omitempty"`
	Year        *int    `db:"year" json:"year,omitempty"`
	Orientation *string `db:"orientation" json:"orientation,omitempty"`
	Plans       int     `db:"plans" json:"plans"`
}

// Buckets for module demand rows without a module or a start date.
const (
	NoModule    = "sin_modulo"
	NoStartDate = "sin_fecha"
)

// ModuleDemandRow is the raw per module and start date count.
type ModuleDemandRow struct {
	Module    *string    `db:"module"`
	StartDate *time.Time `db:"start_date"`
	Items     int        `db:"items"`
}

// ModuleDemand is planned demand grouped by source module and start month (YYYY-MM).
type ModuleDemand struct {
	Module string `json:"module"`
	Month  string `json:"month"`
	Items  int    `json:"items"`
}

// RiskRosterFilter narrows the risk roster. Empty Levels keeps every level.
type RiskRosterFilter struct {
	Program      string
	Cohort       string
	Levels       []RiskLevel
	ElectiveType string
}

// RiskRosterEntry is one student's standing against the concentration rule.
type RiskRosterEntry struct {
	StudentID       string    `json:"student_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Program         string    `json:"program"`
	Cohort          *string   `json:"cohort,omitempty"`
	BestOrientation *string   `json:"best_orientation"`
	BestCount       int       `json:"best_count"`
	TotalCompleted  int       `json:"total_completed"`
	Gap             int       `json:"gap"`
	Level           RiskLevel `json:"level"`
	Passes          bool      `json:"passes"`
}

// ParseRiskLevel accepts low, medium or high in any case.
func ParseRiskLevel(raw string) (RiskLevel, bool) {
	switch level := RiskLevel(strings.ToLower(strings.TrimSpace(raw))); level {
	case RiskLow, RiskMedium, RiskHigh:
		return level, true
	default:
		return "", false
	}
}

// HealthCounts is the entity census exposed by the health endpoint.
type HealthCounts struct {
	Courses     int `db:"courses" json:"courses"`
	Students    int `db:"students" json:"students"`
	Plans       int `db:"plans" json:"plans"`
	Enrollments int `db:"enrollments" json:"enrollments"`
}

// CountsByOrientation indexes counts by orientation name.
func CountsByOrientation(counts []OrientationCount) map[string]int {
	out := make(map[string]int, len(counts))
	for _, c := range counts {
		out[c.Orientation] += c.Count
	}
	return out
}
