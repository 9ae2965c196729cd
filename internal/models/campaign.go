package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead statuses.
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusConverted = "converted"
	LeadStatusRejected  = "rejected"
)

// Campaign groups leads generated by a marketing effort.
type Campaign struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Ownership
	Name      string         `gorm:"size:64;not null" json:"name" validate:"required,max=64"`
	Status    string         `gorm:"size:64" json:"status" validate:"omitempty,oneof=planned started completed on_hold called_off"`
	Budget    float64        `json:"budget"`
	StartsOn  *time.Time     `json:"starts_on"`
	EndsOn    *time.Time     `json:"ends_on"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c Campaign) Ref() SubjectRef     { return SubjectRef{Type: SubjectCampaign, ID: c.ID} }
func (c Campaign) DisplayName() string { return c.Name }
func (c Campaign) State() LifecycleState {
	return LifecycleState{AssignedTo: c.AssignedTo, Status: c.Status}
}

// Lead is a prospective contact that can be converted or rejected.
type Lead struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Ownership
	CampaignID *uint          `gorm:"index" json:"campaign_id"`
	FirstName  string         `gorm:"size:64;not null" json:"first_name" validate:"required,max=64"`
	LastName   string         `gorm:"size:64;not null" json:"last_name" validate:"required,max=64"`
	Company    string         `gorm:"size:64" json:"company"`
	Email      string         `gorm:"size:64" json:"email"`
	Source     string         `gorm:"size:32" json:"source"`
	Status     string         `gorm:"size:32;not null;default:new" json:"status" validate:"omitempty,oneof=new contacted converted rejected"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (l Lead) Ref() SubjectRef     { return SubjectRef{Type: SubjectLead, ID: l.ID} }
func (l Lead) DisplayName() string { return fullName(l.FirstName, l.LastName) }
func (l Lead) State() LifecycleState {
	return LifecycleState{AssignedTo: l.AssignedTo, Status: l.Status}
}
