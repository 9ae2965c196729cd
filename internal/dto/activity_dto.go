package dto

import (
	"strings"
	"time"

	"github.com/noah-isme/crm-activity-api/internal/models"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// ActivityListRequest mirrors the options of the latest activity feed.
type ActivityListRequest struct {
	Page           int      `validate:"gte=0"`
	PageSize       int      `validate:"gte=0,lte=200"`
	Asset          string   `validate:"omitempty,oneof=account campaign contact lead opportunity task"`
	UserID         *uint
	Duration       string
	Actions        []string `validate:"omitempty,dive,required"`
	ExcludeActions []string `validate:"omitempty,dive,required"`
}

// ActivityResponse serializes an activity for API consumers.
type ActivityResponse struct {
	ID          uint      `json:"id"`
	UserID      *uint     `json:"user_id"`
	SubjectType string    `json:"subject_type"`
	SubjectID   uint      `json:"subject_id"`
	Action      string    `json:"action"`
	Info        string    `json:"info"`
	Private     bool      `json:"private"`
	Changes     []string  `json:"changes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActivityListResponse wraps a page of visible activities.
type ActivityListResponse struct {
	Items      []ActivityResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
}

// ActivityPurgeRequest selects activities removed by an administrator.
type ActivityPurgeRequest struct {
	UserID      *uint      `json:"user_id"`
	Actions     []string   `json:"actions" validate:"omitempty,dive,required"`
	SubjectType string     `json:"subject_type" validate:"omitempty,oneof=account campaign contact lead opportunity task"`
	SubjectID   *uint      `json:"subject_id"`
	Before      *time.Time `json:"before"`
}

// ActivityPurgeResponse reports the number of removed rows.
type ActivityPurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

// RecentlyViewedItem is one entry of a user's recency list.
type RecentlyViewedItem struct {
	Type string `json:"type"`
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// RecentlyViewedResponse wraps a recency list.
type RecentlyViewedResponse struct {
	Items    []RecentlyViewedItem `json:"items"`
	CacheHit bool                 `json:"cache_hit"`
}

// NewActivityResponse converts an activity model into a DTO.
func NewActivityResponse(activity models.Activity) ActivityResponse {
	return ActivityResponse{
		ID:          activity.ID,
		UserID:      activity.UserID,
		SubjectType: activity.SubjectType,
		SubjectID:   activity.SubjectID,
		Action:      string(activity.Action),
		Info:        activity.Info,
		Private:     activity.Private,
		Changes:     activity.ChangedAttributes(),
		CreatedAt:   activity.CreatedAt,
		UpdatedAt:   activity.UpdatedAt,
	}
}

// Model rebuilds the activity carried by a response, for example one decoded
// from an event published by another node.
func (r ActivityResponse) Model() models.Activity {
	return models.Activity{
		ID:          r.ID,
		UserID:      r.UserID,
		SubjectType: r.SubjectType,
		SubjectID:   r.SubjectID,
		Action:      models.ActivityAction(r.Action),
		Info:        r.Info,
		Private:     r.Private,
		Changes:     models.EncodeChanges(r.Changes),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ParseActions converts raw action names into typed actions, skipping blanks.
func ParseActions(values []string) []models.ActivityAction {
	actions := make([]models.ActivityAction, 0, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		actions = append(actions, models.ActivityAction(trimmed))
	}
	return actions
}
