package models

import (
	"time"

	"gorm.io/gorm"
)

// Account is a company or organisation tracked by the CRM.
type Account struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Ownership
	Name      string         `gorm:"size:64;not null" json:"name" validate:"required,max=64"`
	Website   string         `gorm:"size:64" json:"website"`
	Email     string         `gorm:"size:64" json:"email" validate:"omitempty,email"`
	Phone     string         `gorm:"size:32" json:"phone"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (a Account) Ref() SubjectRef       { return SubjectRef{Type: SubjectAccount, ID: a.ID} }
func (a Account) DisplayName() string   { return a.Name }
func (a Account) State() LifecycleState { return LifecycleState{AssignedTo: a.AssignedTo} }

// Contact is a person attached to an account.
type Contact struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Ownership
	AccountID *uint          `gorm:"index" json:"account_id"`
	FirstName string         `gorm:"size:64;not null" json:"first_name" validate:"required,max=64"`
	LastName  string         `gorm:"size:64;not null" json:"last_name" validate:"required,max=64"`
	Title     string         `gorm:"size:64" json:"title"`
	Email     string         `gorm:"size:64" json:"email"`
	Phone     string         `gorm:"size:32" json:"phone"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c Contact) Ref() SubjectRef       { return SubjectRef{Type: SubjectContact, ID: c.ID} }
func (c Contact) DisplayName() string   { return fullName(c.FirstName, c.LastName) }
func (c Contact) State() LifecycleState { return LifecycleState{AssignedTo: c.AssignedTo} }
