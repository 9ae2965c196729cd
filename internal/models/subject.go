package models

import (
	"fmt"
	"strings"
	"time"
)

// Subject type discriminators stored in polymorphic columns.
const (
	SubjectAccount     = "account"
	SubjectCampaign    = "campaign"
	SubjectContact     = "contact"
	SubjectLead        = "lead"
	SubjectOpportunity = "opportunity"
	SubjectTask        = "task"
)

// SubjectTypes lists every trackable subject type.
var SubjectTypes = []string{SubjectAccount, SubjectCampaign, SubjectContact, SubjectLead, SubjectOpportunity, SubjectTask}

// AccessLevel is the visibility mode attached to a subject.
type AccessLevel string

const (
	AccessPrivate AccessLevel = "Private"
	AccessPublic  AccessLevel = "Public"
	AccessShared  AccessLevel = "Shared"
)

// ParseAccessLevel normalises user supplied access values.
func ParseAccessLevel(value string) (AccessLevel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "public":
		return AccessPublic, nil
	case "private":
		return AccessPrivate, nil
	case "shared":
		return AccessShared, nil
	default:
		return "", fmt.Errorf("unknown access level %q", value)
	}
}

// SubjectRef is the (type, id) pair used by polymorphic associations.
type SubjectRef struct {
	Type string `json:"type"`
	ID   uint   `json:"id"`
}

func (r SubjectRef) String() string {
	return fmt.Sprintf("%s#%d", r.Type, r.ID)
}

// IsZero reports whether the reference is unset.
func (r SubjectRef) IsZero() bool {
	return r.Type == "" || r.ID == 0
}

// LifecycleState carries the attributes that refine a generic update into a specific action.
type LifecycleState struct {
	CompletedAt *time.Time
	AssignedTo  *uint
	Bucket      string
	DueAt       *time.Time
	Status      string
}

// Subject is implemented by every business entity activities can be recorded against.
type Subject interface {
	Ref() SubjectRef
	OwnerID() uint
	DisplayName() string
	AccessLevel() AccessLevel
	State() LifecycleState
}

// Delegated is implemented by subjects that are also visible to their assignee.
type Delegated interface {
	DelegateID() *uint
}

// Owned is implemented by pointer records whose owner can be assigned.
type Owned interface {
	SetOwnerID(id uint)
}

// Ownership groups the owner, assignee and access columns shared by CRM assets.
type Ownership struct {
	UserID     uint        `gorm:"not null;index" json:"user_id"`
	AssignedTo *uint       `gorm:"index" json:"assigned_to"`
	Access     AccessLevel `gorm:"size:8;not null;default:Public" json:"access" validate:"omitempty,oneof=Private Public Shared"`
}

func (o Ownership) OwnerID() uint { return o.UserID }

func (o *Ownership) SetOwnerID(id uint) { o.UserID = id }

func (o Ownership) AccessLevel() AccessLevel {
	if o.Access == "" {
		return AccessPublic
	}
	return o.Access
}

func fullName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// AllModels lists every model migrated at startup.
func AllModels() []interface{} {
	return []interface{}{
		&Account{}, &Campaign{}, &Contact{}, &Lead{}, &Opportunity{}, &Task{},
		&Permission{}, &Comment{}, &Activity{},
	}
}
