package models

import "time"

type PlanItemState string

const (
	PlanItemPlanned PlanItemState = "planned"
	PlanItemBackup  PlanItemState = "backup"
)

// PlanVersion is one revision of a student's plan. A nil ValidUntil marks the
// open version; at most one per student is open at a time.
type PlanVersion struct {
	ID         string     `db:"id" json:"id"`
	StudentID  string     `db:"student_id" json:"student_id"`
	VersionNum int        `db:"version_num" json:"version_num"`
	ValidFrom  time.Time  `db:"valid_from" json:"valid_from"`
	ValidUntil *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	Comment    *string    `db:"comment" json:"comment,omitempty"`
}

// Open reports whether the version has not been closed.
func (p PlanVersion) Open() bool { return p.ValidUntil == nil }

// ActiveAt reports whether now falls inside the validity window.
func (p PlanVersion) ActiveAt(now time.Time) bool {
	if p.ValidFrom.After(now) {
		return false
	}
	return p.ValidUntil == nil || !p.ValidUntil.Before(now)
}

type StudentPlanItem struct {
	ID            string        `db:"id" json:"id"`
	PlanVersionID string        `db:"plan_version_id" json:"plan_version_id"`
	CourseRef     string        `db:"course_ref" json:"course_ref"`
	Priority      *int          `db:"priority" json:"priority,omitempty"`
	State         PlanItemState `db:"state" json:"state"`
	Note          *string       `db:"note" json:"note,omitempty"`
}

// PlanItemDetail joins an item with the catalog fields used in listings.
type PlanItemDetail struct {
	StudentPlanItem
	CourseID    string  `db:"course_id" json:"course_id"`
	Subject     *string `db:"subject" json:"subject,omitempty"`
	SubjectType *string `db:"subject_type" json:"subject_type,omitempty"`
	Orientation *string `db:"orientation" json:"orientation,omitempty"`
}
