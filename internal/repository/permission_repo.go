package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/crm-activity-api/internal/models"
)

// PermissionRepository manages the explicit sharing lists of Shared subjects.
type PermissionRepository interface {
	UserIDs(ctx context.Context, ref models.SubjectRef) ([]uint, error)
	Replace(ctx context.Context, ref models.SubjectRef, userIDs []uint) error
	DeleteFor(ctx context.Context, ref models.SubjectRef) error
}

type permissionRepository struct {
	db *gorm.DB
}

// NewPermissionRepository constructs the permission repository.
func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) UserIDs(ctx context.Context, ref models.SubjectRef) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Permission{}).
		Where("asset_type = ? AND asset_id = ?", ref.Type, ref.ID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// Replace swaps the sharing list of a subject for userIDs.
func (r *permissionRepository) Replace(ctx context.Context, ref models.SubjectRef, userIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("asset_type = ? AND asset_id = ?", ref.Type, ref.ID).Delete(&models.Permission{}).Error; err != nil {
			return err
		}

		seen := make(map[uint]struct{}, len(userIDs))
		records := make([]models.Permission, 0, len(userIDs))
		for _, id := range userIDs {
			if id == 0 {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			records = append(records, models.Permission{UserID: id, AssetType: ref.Type, AssetID: ref.ID})
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(&records).Error
	})
}

func (r *permissionRepository) DeleteFor(ctx context.Context, ref models.SubjectRef) error {
	return r.db.WithContext(ctx).
		Where("asset_type = ? AND asset_id = ?", ref.Type, ref.ID).
		Delete(&models.Permission{}).Error
}
