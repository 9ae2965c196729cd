package models

import (
	"time"

	"gorm.io/gorm"
)

// Task buckets.
const (
	BucketDueASAP     = "due_asap"
	BucketOverdue     = "overdue"
	BucketDueToday    = "due_today"
	BucketDueTomorrow = "due_tomorrow"
	BucketDueThisWeek = "due_this_week"
	BucketDueNextWeek = "due_next_week"
	BucketDueLater    = "due_later"
)

// Task is a to-do item owned by one user and optionally assigned to another.
// Tasks carry no access level: only the owner and the assignee can see them.
type Task struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	AssignedTo  *uint          `gorm:"index" json:"assigned_to"`
	AssetType   string         `gorm:"size:64" json:"asset_type"`
	AssetID     *uint          `json:"asset_id"`
	Name        string         `gorm:"size:255;not null" json:"name" validate:"required,max=255"`
	Category    string         `gorm:"size:32" json:"category"`
	Bucket      string         `gorm:"size:32;not null;default:due_asap" json:"bucket" validate:"omitempty,oneof=due_asap overdue due_today due_tomorrow due_this_week due_next_week due_later"`
	DueAt       *time.Time     `json:"due_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (t Task) Ref() SubjectRef          { return SubjectRef{Type: SubjectTask, ID: t.ID} }
func (t Task) OwnerID() uint            { return t.UserID }
func (t Task) DisplayName() string      { return t.Name }
func (t Task) AccessLevel() AccessLevel { return AccessPrivate }
func (t Task) DelegateID() *uint        { return t.AssignedTo }
func (t *Task) SetOwnerID(id uint)      { t.UserID = id }

func (t Task) State() LifecycleState {
	return LifecycleState{
		CompletedAt: t.CompletedAt,
		AssignedTo:  t.AssignedTo,
		Bucket:      t.Bucket,
		DueAt:       t.DueAt,
	}
}
