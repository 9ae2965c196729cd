package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/crm-activity-api/internal/models"
)

// CommentRepository persists comments attached to subjects.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListFor(ctx context.Context, ref models.SubjectRef) ([]models.Comment, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository constructs the comment repository.
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *commentRepository) ListFor(ctx context.Context, ref models.SubjectRef) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.db.WithContext(ctx).
		Where("commentable_type = ? AND commentable_id = ?", ref.Type, ref.ID).
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}
