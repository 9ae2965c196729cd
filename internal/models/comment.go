package models

import "time"

// Comment is a note attached to any trackable subject.
type Comment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	CommentableType string    `gorm:"size:64;not null;index:idx_comments_commentable,priority:1" json:"commentable_type"`
	CommentableID   uint      `gorm:"not null;index:idx_comments_commentable,priority:2" json:"commentable_id"`
	Private         bool      `gorm:"not null;default:false" json:"private"`
	Title           string    `gorm:"size:255;default:''" json:"title"`
	Comment         string    `gorm:"type:text" json:"comment"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Commentable returns the subject reference the comment is attached to.
func (c Comment) Commentable() SubjectRef {
	return SubjectRef{Type: c.CommentableType, ID: c.CommentableID}
}
