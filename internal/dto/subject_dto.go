package dto

import (
	"time"

	"github.com/noah-isme/crm-activity-api/internal/models"
)

// SubjectResponse wraps any CRM subject together with audit warnings raised
// while logging the operation.
type SubjectResponse struct {
	Type     string         `json:"type"`
	ID       uint           `json:"id"`
	Name     string         `json:"name"`
	Record   models.Subject `json:"record"`
	Warnings []string       `json:"warnings,omitempty"`
}

// CommentCreateRequest is the payload for attaching a comment to a subject.
type CommentCreateRequest struct {
	Title   string `json:"title" validate:"max=255"`
	Comment string `json:"comment" validate:"required,max=10000"`
	Private bool   `json:"private"`
}

// CommentResponse serializes a stored comment.
type CommentResponse struct {
	ID              uint      `json:"id"`
	UserID          uint      `json:"user_id"`
	CommentableType string    `json:"commentable_type"`
	CommentableID   uint      `json:"commentable_id"`
	Title           string    `json:"title"`
	Comment         string    `json:"comment"`
	Private         bool      `json:"private"`
	CreatedAt       time.Time `json:"created_at"`
	Warnings        []string  `json:"warnings,omitempty"`
}

// PermissionUpdateRequest replaces the sharing list of a subject.
type PermissionUpdateRequest struct {
	UserIDs []uint `json:"user_ids" validate:"dive,gt=0"`
}

// PermissionResponse lists the users a subject is shared with.
type PermissionResponse struct {
	Type    string `json:"type"`
	ID      uint   `json:"id"`
	Access  string `json:"access"`
	UserIDs []uint `json:"user_ids"`
}

// NewSubjectResponse converts a subject into a DTO.
func NewSubjectResponse(subject models.Subject, warnings []string) SubjectResponse {
	ref := subject.Ref()
	return SubjectResponse{
		Type:     ref.Type,
		ID:       ref.ID,
		Name:     subject.DisplayName(),
		Record:   subject,
		Warnings: warnings,
	}
}

// NewCommentResponse converts a comment model into a DTO.
func NewCommentResponse(comment models.Comment, warnings []string) CommentResponse {
	return CommentResponse{
		ID:              comment.ID,
		UserID:          comment.UserID,
		CommentableType: comment.CommentableType,
		CommentableID:   comment.CommentableID,
		Title:           comment.Title,
		Comment:         comment.Comment,
		Private:         comment.Private,
		CreatedAt:       comment.CreatedAt,
		Warnings:        warnings,
	}
}
