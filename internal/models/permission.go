package models

import "time"

// Permission grants a user access to a Shared asset.
type Permission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_permissions_user_asset,priority:1" json:"user_id"`
	AssetType string    `gorm:"size:64;not null;uniqueIndex:idx_permissions_user_asset,priority:2;index:idx_permissions_asset,priority:1" json:"asset_type"`
	AssetID   uint      `gorm:"not null;uniqueIndex:idx_permissions_user_asset,priority:3;index:idx_permissions_asset,priority:2" json:"asset_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
