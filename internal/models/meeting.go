package models

import "time"

// Meeting is an advising session. StudentID survives as NULL if the student row goes away.
type Meeting struct {
	ID                string    `db:"id" json:"id"`
	StudentID         *string   `db:"student_id" json:"student_id,omitempty"`
	HeldAt            time.Time `db:"held_at" json:"held_at"`
	TargetOrientation *string   `db:"target_orientation" json:"target_orientation,omitempty"`
	Agreement         *string   `db:"agreement" json:"agreement,omitempty"`
	Notes             *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
