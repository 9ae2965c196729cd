package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/crm-activity-api/internal/models"
	"github.com/noah-isme/crm-activity-api/internal/repository"
)

// SubjectResolver loads the subject behind a polymorphic reference.
type SubjectResolver interface {
	Resolve(ctx context.Context, ref models.SubjectRef, includeDeleted bool) (models.Subject, error)
}

// PermissionLister returns the users a Shared subject is shared with.
type PermissionLister interface {
	UserIDs(ctx context.Context, ref models.SubjectRef) ([]uint, error)
}

// VisibilityFilter decides which activities a viewer may see from the current
// access policy of each activity's subject.
type VisibilityFilter struct {
	subjects    SubjectResolver
	permissions PermissionLister
	logger      zerolog.Logger
}

// NewVisibilityFilter constructs the filter.
func NewVisibilityFilter(subjects SubjectResolver, permissions PermissionLister, logger zerolog.Logger) *VisibilityFilter {
	return &VisibilityFilter{
		subjects:    subjects,
		permissions: permissions,
		logger:      logger.With().Str("component", "visibility_filter").Logger(),
	}
}

// VisibleTo keeps the activities visible to viewerID, preserving order.
// Subjects are resolved including soft-deleted ones so owners still see the
// deleted entry; resolution is memoized for the duration of one call only.
func (f *VisibilityFilter) VisibleTo(ctx context.Context, activities []models.Activity, viewerID uint) ([]models.Activity, error) {
	decisions := make(map[models.SubjectRef]bool)
	visible := make([]models.Activity, 0, len(activities))

	for _, activity := range activities {
		ref := activity.Subject()
		allowed, ok := decisions[ref]
		if !ok {
			var err error
			allowed, err = f.allowed(ctx, ref, viewerID)
			if err != nil {
				return nil, err
			}
			decisions[ref] = allowed
		}
		if allowed {
			visible = append(visible, activity)
		}
	}

	return visible, nil
}

// CanView reports whether viewerID may see the subject right now.
func (f *VisibilityFilter) CanView(ctx context.Context, subject models.Subject, viewerID uint) (bool, error) {
	var permitted []uint
	if subject.AccessLevel() == models.AccessShared && subject.OwnerID() != viewerID {
		ids, err := f.permissions.UserIDs(ctx, subject.Ref())
		if err != nil {
			return false, err
		}
		permitted = ids
	}
	return Visible(subject, viewerID, permitted), nil
}

func (f *VisibilityFilter) allowed(ctx context.Context, ref models.SubjectRef, viewerID uint) (bool, error) {
	subject, err := f.subjects.Resolve(ctx, ref, true)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrUnknownSubjectType) {
			f.logger.Debug().Str("subject", ref.String()).Msg("dropping activity with unresolvable subject")
			return false, nil
		}
		return false, err
	}
	return f.CanView(ctx, subject, viewerID)
}

// Visible applies the access policy: owners always see their subjects, Public
// subjects are visible to everyone and Shared subjects to the listed users.
// Subjects implementing models.Delegated are also visible to their assignee.
func Visible(subject models.Subject, viewerID uint, permitted []uint) bool {
	if viewerID == 0 {
		return false
	}
	if subject.OwnerID() == viewerID {
		return true
	}
	if delegated, ok := subject.(models.Delegated); ok {
		if assignee := delegated.DelegateID(); assignee != nil && *assignee == viewerID {
			return true
		}
		return false
	}

	switch subject.AccessLevel() {
	case models.AccessPublic:
		return true
	case models.AccessShared:
		for _, id := range permitted {
			if id == viewerID {
				return true
			}
		}
	}
	return false
}
