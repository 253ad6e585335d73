package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment. Any status may
// follow any other.
type EnrollmentStatus string

const (
	EnrollmentPlanned    EnrollmentStatus = "planned"
	EnrollmentRegistered EnrollmentStatus = "registered"
	EnrollmentCompleted  EnrollmentStatus = "completed"
	EnrollmentWithdrawn  EnrollmentStatus = "withdrawn"
	EnrollmentFailed     EnrollmentStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentPlanned, EnrollmentRegistered, EnrollmentCompleted, EnrollmentWithdrawn, EnrollmentFailed:
		return true
	}
	return false
}

// Enrollment is a student's registration for a catalog course.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	CourseRef       string           `db:"course_ref" json:"course_ref"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	Grade           *string          `db:"grade" json:"grade,omitempty"`
	GradeNumeric    *float64         `db:"grade_numeric" json:"grade_numeric,omitempty"`
	RegisteredAt    time.Time        `db:"registered_at" json:"registered_at"`
	StatusChangedAt *time.Time       `db:"status_changed_at" json:"status_changed_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with catalog info.
type EnrollmentDetail struct {
	Enrollment
	CourseID    string  `db:"course_id" json:"course_id"`
	Subject     *string `db:"subject" json:"subject,omitempty"`
	SubjectType *string `db:"subject_type" json:"subject_type,omitempty"`
	Orientation *string `db:"orientation" json:"orientation,omitempty"`
}
