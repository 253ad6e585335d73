package models

import "time"

const (
	ProgramMBA  = "MBA"
	ProgramEMBA = "EMBA"
)

// Student is a person following one of the programs. Deletion is soft:
// Active turns false and DeletedAt is stamped.
type Student struct {
	ID        string     `db:"id" json:"id"`
	FirstName string     `db:"first_name" json:"first_name"`
	LastName  string     `db:"last_name" json:"last_name"`
	Email     string     `db:"email" json:"email"`
	Program   string     `db:"program" json:"program"`
	Cohort    *string    `db:"cohort" json:"cohort,omitempty"`
	Extra     *string    `db:"extra" json:"extra,omitempty"`
	Active    bool       `db:"active" json:"active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Program   string
	Cohort    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentImportSummary is the outcome of a bulk student upload.
type StudentImportSummary struct {
	Created int      `json:"created"`
	Errors  []string `json:"errors"`
}
