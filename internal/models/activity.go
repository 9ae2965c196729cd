package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ActivityAction enumerates the audit actions recorded against a subject.
type ActivityAction string

const (
	ActionCreated     ActivityAction = "created"
	ActionUpdated     ActivityAction = "updated"
	ActionDeleted     ActivityAction = "deleted"
	ActionViewed      ActivityAction = "viewed"
	ActionCommented   ActivityAction = "commented"
	ActionCompleted   ActivityAction = "completed"
	ActionReassigned  ActivityAction = "reassigned"
	ActionRescheduled ActivityAction = "rescheduled"
	ActionRejected    ActivityAction = "rejected"
	ActionCustom      ActivityAction = "custom"
)

var knownActions = map[ActivityAction]struct{}{
	ActionCreated: {}, ActionUpdated: {}, ActionDeleted: {}, ActionViewed: {}, ActionCommented: {},
	ActionCompleted: {}, ActionReassigned: {}, ActionRescheduled: {}, ActionRejected: {}, ActionCustom: {},
}

// Valid reports whether the action is one of the known audit actions.
func (a ActivityAction) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// Activity is one append-only audit event about a polymorphic subject.
type Activity struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      *uint          `gorm:"index:idx_activities_user_action,priority:1" json:"user_id"`
	SubjectType string         `gorm:"size:64;not null;index:idx_activities_subject,priority:1" json:"subject_type"`
	SubjectID   uint           `gorm:"not null;index:idx_activities_subject,priority:2" json:"subject_id"`
	Action      ActivityAction `gorm:"size:32;not null;default:created;index:idx_activities_user_action,priority:2" json:"action"`
	Info        string         `gorm:"size:255;not null;default:''" json:"info"`
	Private     bool           `gorm:"not null;default:false" json:"private"`
	Changes     datatypes.JSON `json:"changes,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Subject returns the polymorphic reference of the activity.
func (a Activity) Subject() SubjectRef {
	return SubjectRef{Type: a.SubjectType, ID: a.SubjectID}
}

// ChangedAttributes decodes the attribute names captured for update-derived actions.
func (a Activity) ChangedAttributes() []string {
	if len(a.Changes) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(a.Changes, &names); err != nil {
		return nil
	}
	return names
}

// EncodeChanges converts attribute names into the JSON column representation.
func EncodeChanges(names []string) datatypes.JSON {
	if len(names) == 0 {
		return nil
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
