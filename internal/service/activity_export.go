package service

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/noah-isme/crm-activity-api/internal/dto"
	"github.com/noah-isme/crm-activity-api/internal/models"
)

var activityExportHeader = []string{"id", "user_id", "subject_type", "subject_id", "action", "info", "private", "created_at", "updated_at"}

// ExportActivities writes the activities visible to viewerID as CSV and returns
// the number of data rows written.
func ExportActivities(ctx context.Context, activities ActivityService, viewerID uint, req dto.ActivityListRequest, w io.Writer) (int, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(activityExportHeader); err != nil {
		return 0, err
	}

	rows := 0
	err := activities.EachVisible(ctx, viewerID, req, func(batch []models.Activity) error {
		for _, activity := range batch {
			if err := writer.Write(activityRecord(activity)); err != nil {
				return err
			}
			rows++
		}
		writer.Flush()
		return writer.Error()
	})
	if err != nil {
		return rows, err
	}

	writer.Flush()
	return rows, writer.Error()
}

func activityRecord(activity models.Activity) []string {
	userID := ""
	if activity.UserID != nil {
		userID = strconv.FormatUint(uint64(*activity.UserID), 10)
	}
	return []string{
		strconv.FormatUint(uint64(activity.ID), 10),
		userID,
		activity.SubjectType,
		strconv.FormatUint(uint64(activity.SubjectID), 10),
		string(activity.Action),
		activity.Info,
		strconv.FormatBool(activity.Private),
		activity.CreatedAt.UTC().Format(time.RFC3339),
		activity.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
