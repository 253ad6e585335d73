package models

import "time"

// Entity names used in the change log.
const (
	EntityCourse       = "course"
	EntityCourseSource = "course_source"
	EntityStudent      = "student"
	EntityMeeting      = "meeting"
	EntityPlanVersion  = "plan_version"
	EntityPlanItem     = "plan_item"
	EntityEnrollment   = "enrollment"
)

// ChangeLogEntry is one append-only audit row.
type ChangeLogEntry struct {
	ID       string    `db:"id" json:"id"`
	TS       time.Time `db:"ts" json:"ts"`
	Actor    *string   `db:"actor" json:"actor,omitempty"`
	Entity   string    `db:"entity" json:"entity"`
	EntityID *string   `db:"entity_id" json:"entity_id,omitempty"`
	Field    *string   `db:"field" json:"field,omitempty"`
	OldValue *string   `db:"old_value" json:"old_value,omitempty"`
	NewValue *string   `db:"new_value" json:"new_value,omitempty"`
	Reason   *string   `db:"reason" json:"reason,omitempty"`
}

// ChangeLogFilter narrows audit listings. Actor and Entity match substrings.
type ChangeLogFilter struct {
	From     *time.Time
	To       *time.Time
	Actor    string
	Entity   string
	EntityID string
	Page     int
	PageSize int
}

// CountByKey is a grouped count row.
type CountByKey struct {
	Key   string `db:"key" json:"key"`
	Count int    `db:"count" json:"count"`
}

// ChangeLogStats summarises the audit trail.
type ChangeLogStats struct {
	Total    int          `json:"total"`
	ByEntity []CountByKey `json:"by_entity"`
	ByActor  []CountByKey `json:"by_actor"`
}
