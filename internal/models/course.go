package models

import "time"

// DefaultElectiveType is the subject type that counts toward the concentration rule.
const DefaultElectiveType = "electiva"

// Course is a catalog entry. It is identified by CourseID together with
// Orientation: the same subject id may be offered once per orientation.
type Course struct {
	ID          string     `db:"id" json:"id"`
	CourseID    string     `db:"course_id" json:"course_id"`
	Program     *string    `db:"program" json:"program,omitempty"`
	Year        *int       `db:"year" json:"year,omitempty"`
	Subject     *string    `db:"subject" json:"subject,omitempty"`
	StartDate   *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate     *time.Time `db:"end_date" json:"end_date,omitempty"`
	Weekday     *string    `db:"weekday" json:"weekday,omitempty"`
	TimeBlock   *string    `db:"time_block" json:"time_block,omitempty"`
	Format      *string    `db:"format" json:"format,omitempty"`
	Hours       *float64   `db:"hours" json:"hours,omitempty"`
	SubjectType *string    `db:"subject_type" json:"subject_type,omitempty"`
	Orientation *string    `db:"orientation" json:"orientation,omitempty"`
	Comments    *string    `db:"comments" json:"comments,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// CourseSource records which spreadsheet row a course was last imported from.
// Its identity is (CourseRef, SourceTab, SourceRow); Module is informational.
type CourseSource struct {
	ID                string  `db:"id" json:"id"`
	CourseRef         string  `db:"course_ref" json:"course_ref"`
	SourceTab         *string `db:"source_tab" json:"source_tab,omitempty"`
	SourceOrientation *string `db:"source_orientation" json:"source_orientation,omitempty"`
	Module            *string `db:"module" json:"module,omitempty"`
	SourceRow         int     `db:"source_row" json:"source_row"`
}

type CourseFilter struct {
	Search      string
	Program     string
	Year        *int
	Orientation string
	SubjectType string
	Page        int
	PageSize    int
}
