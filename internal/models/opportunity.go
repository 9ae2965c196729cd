package models

import (
	"time"

	"gorm.io/gorm"
)

// Opportunity is a potential deal with an account.
type Opportunity struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Ownership
	AccountID   *uint          `gorm:"index" json:"account_id"`
	Name        string         `gorm:"size:64;not null" json:"name" validate:"required,max=64"`
	Stage       string         `gorm:"size:32" json:"stage"`
	Amount      float64        `json:"amount"`
	Discount    float64        `json:"discount"`
	Probability int            `json:"probability" validate:"gte=0,lte=100"`
	ClosesOn    *time.Time     `json:"closes_on"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (o Opportunity) Ref() SubjectRef       { return SubjectRef{Type: SubjectOpportunity, ID: o.ID} }
func (o Opportunity) DisplayName() string   { return o.Name }
func (o Opportunity) State() LifecycleState { return LifecycleState{AssignedTo: o.AssignedTo} }
