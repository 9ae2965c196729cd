package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/crm-activity-api/internal/models"
)

const defaultActivityBatchSize = 200

// ActivityFilter narrows activity queries.
type ActivityFilter struct {
	ActorID        *uint
	Actions        []models.ActivityAction
	ExcludeActions []models.ActivityAction
	SubjectType    string
	Subject        *models.SubjectRef
	Since          *time.Time
	Until          *time.Time
	Page           int
	PageSize       int
}

// ActivityPurgeCriteria selects the rows removed by an administrative purge.
// The zero value matches every row.
type ActivityPurgeCriteria struct {
	ActorID     *uint
	Actions     []models.ActivityAction
	SubjectType string
	Subject     *models.SubjectRef
	Before      *time.Time
}

// ActivityCursor is the keyset position of the last row handed out by Each.
type ActivityCursor struct {
	CreatedAt time.Time
	ID        uint
}

// ActivityRepository persists the audit trail.
type ActivityRepository interface {
	Create(ctx context.Context, entry *models.Activity) error
	List(ctx context.Context, filter ActivityFilter) ([]models.Activity, int64, error)
	Each(ctx context.Context, filter ActivityFilter, batchSize int, fn func([]models.Activity) error) error
	DeleteAllMatching(ctx context.Context, criteria ActivityPurgeCriteria) (int64, error)
	DeleteViewed(ctx context.Context, ref models.SubjectRef) ([]uint, error)
	ReplaceViewed(ctx context.Context, entry *models.Activity) error
	RecentlyViewed(ctx context.Context, actorID uint, subjectType string, limit int) ([]models.SubjectRef, error)
	WithTx(tx *gorm.DB) ActivityRepository
}

type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository constructs the activity repository.
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) WithTx(tx *gorm.DB) ActivityRepository {
	return &activityRepository{db: tx}
}

func (r *activityRepository) Create(ctx context.Context, entry *models.Activity) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *activityRepository) List(ctx context.Context, filter ActivityFilter) ([]models.Activity, int64, error) {
	query := applyActivityFilter(r.db.WithContext(ctx).Model(&models.Activity{}), filter)

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var entries []models.Activity
	if err := query.Order("created_at DESC").Order("id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// Each walks every matching row newest-first in keyset-paginated batches.
// Pagination fields of the filter are ignored. Calling it again restarts from the newest row.
func (r *activityRepository) Each(ctx context.Context, filter ActivityFilter, batchSize int, fn func([]models.Activity) error) error {
	if batchSize <= 0 {
		batchSize = defaultActivityBatchSize
	}

	var cursor *ActivityCursor
	for {
		query := applyActivityFilter(r.db.WithContext(ctx).Model(&models.Activity{}), filter)
		if cursor != nil {
			query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		}

		var batch []models.Activity
		if err := query.Order("created_at DESC").Order("id DESC").Limit(batchSize).Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}

		last := batch[len(batch)-1]
		cursor = &ActivityCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
}

func (r *activityRepository) DeleteAllMatching(ctx context.Context, criteria ActivityPurgeCriteria) (int64, error) {
	query := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})

	if criteria.ActorID != nil {
		query = query.Where("user_id = ?", *criteria.ActorID)
	}
	if len(criteria.Actions) > 0 {
		query = query.Where("action IN ?", criteria.Actions)
	}
	if criteria.SubjectType != "" {
		query = query.Where("subject_type = ?", criteria.SubjectType)
	}
	if criteria.Subject != nil {
		query = query.Where("subject_type = ? AND subject_id = ?", criteria.Subject.Type, criteria.Subject.ID)
	}
	if criteria.Before != nil {
		query = query.Where("created_at < ?", *criteria.Before)
	}

	result := query.Delete(&models.Activity{})
	return result.RowsAffected, result.Error
}

// DeleteViewed drops the recency rows of a subject for every actor and returns
// the actors whose recently viewed list changed. Other actions are retained.
func (r *activityRepository) DeleteViewed(ctx context.Context, ref models.SubjectRef) ([]uint, error) {
	var actors []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := tx.Model(&models.Activity{}).
			Where("subject_type = ? AND subject_id = ?", ref.Type, ref.ID).
			Where("action = ?", models.ActionViewed)

		if err := scope.Session(&gorm.Session{}).
			Where("user_id IS NOT NULL").
			Distinct("user_id").
			Pluck("user_id", &actors).Error; err != nil {
			return err
		}

		return scope.Session(&gorm.Session{}).Delete(&models.Activity{}).Error
	})
	if err != nil {
		return nil, err
	}
	return actors, nil
}

// ReplaceViewed appends a fresh viewed row and drops older viewed rows for the
// same (actor, subject) pair, leaving exactly one.
func (r *activityRepository) ReplaceViewed(ctx context.Context, entry *models.Activity) error {
	entry.Action = models.ActionViewed
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		return tx.Where("user_id = ? AND subject_type = ? AND subject_id = ?", entry.UserID, entry.SubjectType, entry.SubjectID).
			Where("action = ?", models.ActionViewed).
			Where("id <> ?", entry.ID).
			Delete(&models.Activity{}).Error
	})
}

type viewedSubjectRow struct {
	SubjectType string
	SubjectID   uint
}

// RecentlyViewed returns distinct subjects ordered by their latest view.
func (r *activityRepository) RecentlyViewed(ctx context.Context, actorID uint, subjectType string, limit int) ([]models.SubjectRef, error) {
	query := r.db.WithContext(ctx).Model(&models.Activity{}).
		Select("subject_type, subject_id").
		Where("user_id = ? AND action = ?", actorID, models.ActionViewed)
	if subjectType != "" {
		query = query.Where("subject_type = ?", subjectType)
	}
	query = query.Group("subject_type, subject_id").
		Order("MAX(created_at) DESC").
		Order("MAX(id) DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []viewedSubjectRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	refs := make([]models.SubjectRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, models.SubjectRef{Type: row.SubjectType, ID: row.SubjectID})
	}
	return refs, nil
}

func applyActivityFilter(query *gorm.DB, filter ActivityFilter) *gorm.DB {
	if filter.ActorID != nil {
		query = query.Where("user_id = ?", *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		query = query.Where("action IN ?", filter.Actions)
	}
	if len(filter.ExcludeActions) > 0 {
		query = query.Where("action NOT IN ?", filter.ExcludeActions)
	}
	if filter.SubjectType != "" {
		query = query.Where("subject_type = ?", filter.SubjectType)
	}
	if filter.Subject != nil {
		query = query.Where("subject_type = ? AND subject_id = ?", filter.Subject.Type, filter.Subject.ID)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("created_at <= ?", *filter.Until)
	}
	return query
}
