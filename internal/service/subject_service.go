package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/crm-activity-api/internal/dto"
	"github.com/noah-isme/crm-activity-api/internal/models"
	"github.com/noah-isme/crm-activity-api/internal/repository"
)

var (
	// ErrSubjectForbidden indicates the actor may not see or change the subject.
	ErrSubjectForbidden = errors.New("subject not accessible")
	// ErrNotShareable indicates a subject type without an access level.
	ErrNotShareable = errors.New("subject type cannot be shared")
	// ErrEmptyComment indicates a comment with no content left after sanitization.
	ErrEmptyComment = errors.New("comment empty after sanitization")
)

var ignoredDiffAttributes = map[string]struct{}{"created_at": {}, "updated_at": {}}

// Actor is the explicit per-request context of the user performing an operation.
type Actor struct {
	ID            uint
	Role          string
	CorrelationID string
}

func (a Actor) ref() *uint {
	if a.ID == 0 {
		return nil
	}
	id := a.ID
	return &id
}

func (a Actor) isAdmin() bool {
	return strings.EqualFold(a.Role, "admin")
}

// SubjectService runs CRM operations and emits their lifecycle events.
type SubjectService interface {
	Create(ctx context.Context, actor Actor, subjectType string, attrs map[string]interface{}) (dto.SubjectResponse, error)
	Show(ctx context.Context, actor Actor, ref models.SubjectRef) (dto.SubjectResponse, error)
	Update(ctx context.Context, actor Actor, ref models.SubjectRef, attrs map[string]interface{}) (dto.SubjectResponse, error)
	Destroy(ctx context.Context, actor Actor, ref models.SubjectRef) (dto.SubjectResponse, error)
	Comment(ctx context.Context, actor Actor, ref models.SubjectRef, payload dto.CommentCreateRequest) (dto.CommentResponse, error)
	Share(ctx context.Context, actor Actor, ref models.SubjectRef, payload dto.PermissionUpdateRequest) (dto.PermissionResponse, error)
}

type subjectService struct {
	subjects    repository.SubjectRepository
	permissions repository.PermissionRepository
	comments    repository.CommentRepository
	visibility  *VisibilityFilter
	activities  ActivityService
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	strict      *bluemonday.Policy
	logger      zerolog.Logger
}

// NewSubjectService constructs the subject service.
func NewSubjectService(
	subjects repository.SubjectRepository,
	permissions repository.PermissionRepository,
	comments repository.CommentRepository,
	visibility *VisibilityFilter,
	activities ActivityService,
	validate *validator.Validate,
	logger zerolog.Logger,
) SubjectService {
	return &subjectService{
		subjects:    subjects,
		permissions: permissions,
		comments:    comments,
		visibility:  visibility,
		activities:  activities,
		validator:   validate,
		sanitizer:   bluemonday.UGCPolicy(),
		strict:      bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "subject_service").Logger(),
	}
}

func (s *subjectService) Create(ctx context.Context, actor Actor, subjectType string, attrs map[string]interface{}) (dto.SubjectResponse, error) {
	record, err := s.subjects.New(subjectType)
	if err != nil {
		return dto.SubjectResponse{}, fmt.Errorf("%w: %w", ErrSubjectNotFound, err)
	}

	permitted := make(map[string]interface{})
	for _, column := range s.subjects.Writable(subjectType) {
		if value, ok := attrs[column]; ok {
			permitted[column] = value
		}
	}
	payload, err := json.Marshal(permitted)
	if err != nil {
		return dto.SubjectResponse{}, err
	}
	if err := json.Unmarshal(payload, record); err != nil {
		return dto.SubjectResponse{}, fmt.Errorf("decode %s attributes: %w", subjectType, err)
	}
	if owned, ok := record.(models.Owned); ok {
		owned.SetOwnerID(actor.ID)
	}
	if err := s.validator.Struct(record); err != nil {
		return dto.SubjectResponse{}, err
	}

	if err := s.subjects.Create(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("subject_type", subjectType).Msg("failed to create subject")
		return dto.SubjectResponse{}, err
	}

	result := s.activities.Log(ctx, LifecycleEvent{Kind: EventCreate, ActorID: actor.ref(), Subject: record})
	return dto.NewSubjectResponse(record, result.Warnings), nil
}

func (s *subjectService) Show(ctx context.Context, actor Actor, ref models.SubjectRef) (dto.SubjectResponse, error) {
	subject, err := s.visible(ctx, actor, ref)
	if err != nil {
		return dto.SubjectResponse{}, err
	}

	result := s.activities.Log(ctx, LifecycleEvent{Kind: EventView, ActorID: actor.ref(), Subject: subject})
	return dto.NewSubjectResponse(subject, result.Warnings), nil
}

func (s *subjectService) Update(ctx context.Context, actor Actor, ref models.SubjectRef, attrs map[string]interface{}) (dto.SubjectResponse, error) {
	if _, err := s.visible(ctx, actor, ref); err != nil {
		return dto.SubjectResponse{}, err
	}

	before, after, err := s.subjects.Update(ctx, ref, attrs, func(merged models.Subject) error {
		return s.validator.Struct(merged)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubjectResponse{}, fmt.Errorf("%w: %s", ErrSubjectNotFound, ref)
		}
		return dto.SubjectResponse{}, err
	}

	changes := diffAttributes(before, after)
	if len(changes) == 0 {
		return dto.NewSubjectResponse(after, nil), nil
	}

	state := before.State()
	result := s.activities.Log(ctx, LifecycleEvent{
		Kind:    EventUpdate,
		ActorID: actor.ref(),
		Subject: after,
		Before:  &state,
		Changes: changes,
	})
	return dto.NewSubjectResponse(after, result.Warnings), nil
}

func (s *subjectService) Destroy(ctx context.Context, actor Actor, ref models.SubjectRef) (dto.SubjectResponse, error) {
	if _, err := s.visible(ctx, actor, ref); err != nil {
		return dto.SubjectResponse{}, err
	}

	removed, err := s.subjects.Delete(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubjectResponse{}, fmt.Errorf("%w: %s", ErrSubjectNotFound, ref)
		}
		return dto.SubjectResponse{}, err
	}

	result := s.activities.Log(ctx, LifecycleEvent{Kind: EventDestroy, ActorID: actor.ref(), Subject: removed})
	return dto.NewSubjectResponse(removed, result.Warnings), nil
}

func (s *subjectService) Comment(ctx context.Context, actor Actor, ref models.SubjectRef, payload dto.CommentCreateRequest) (dto.CommentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CommentResponse{}, err
	}

	subject, err := s.visible(ctx, actor, ref)
	if err != nil {
		return dto.CommentResponse{}, err
	}

	body := strings.TrimSpace(s.sanitizer.Sanitize(payload.Comment))
	if body == "" {
		return dto.CommentResponse{}, ErrEmptyComment
	}

	comment := models.Comment{
		UserID:          actor.ID,
		CommentableType: ref.Type,
		CommentableID:   ref.ID,
		Private:         payload.Private,
		Title:           strings.TrimSpace(s.strict.Sanitize(payload.Title)),
		Comment:         body,
	}
	if err := s.comments.Create(ctx, &comment); err != nil {
		s.logger.Error().Err(err).Str("subject", ref.String()).Msg("failed to create comment")
		return dto.CommentResponse{}, err
	}

	result := s.activities.Log(ctx, LifecycleEvent{Kind: EventComment, ActorID: actor.ref(), Subject: subject})
	return dto.NewCommentResponse(comment, result.Warnings), nil
}

// Share replaces the permission list of a subject. Only the owner or an
// administrator may change it; a non-empty list switches access to Shared.
func (s *subjectService) Share(ctx context.Context, actor Actor, ref models.SubjectRef, payload dto.PermissionUpdateRequest) (dto.PermissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.PermissionResponse{}, err
	}

	subject, err := s.lookup(ctx, ref)
	if err != nil {
		return dto.PermissionResponse{}, err
	}
	if _, delegated := subject.(models.Delegated); delegated {
		return dto.PermissionResponse{}, fmt.Errorf("%w: %s", ErrNotShareable, ref.Type)
	}
	if subject.OwnerID() != actor.ID && !actor.isAdmin() {
		return dto.PermissionResponse{}, ErrSubjectForbidden
	}

	if err := s.permissions.Replace(ctx, ref, payload.UserIDs); err != nil {
		return dto.PermissionResponse{}, err
	}

	if len(payload.UserIDs) > 0 && subject.AccessLevel() != models.AccessShared {
		_, updated, err := s.subjects.Update(ctx, ref, map[string]interface{}{"access": models.AccessShared}, nil)
		if err != nil {
			return dto.PermissionResponse{}, err
		}
		subject = updated
	}

	ids, err := s.permissions.UserIDs(ctx, ref)
	if err != nil {
		return dto.PermissionResponse{}, err
	}

	return dto.PermissionResponse{
		Type:    ref.Type,
		ID:      ref.ID,
		Access:  string(subject.AccessLevel()),
		UserIDs: ids,
	}, nil
}

func (s *subjectService) lookup(ctx context.Context, ref models.SubjectRef) (models.Subject, error) {
	subject, err := s.subjects.Get(ctx, ref, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrUnknownSubjectType) {
			return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, ref)
		}
		return nil, err
	}
	return subject, nil
}

func (s *subjectService) visible(ctx context.Context, actor Actor, ref models.SubjectRef) (models.Subject, error) {
	subject, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if actor.isAdmin() {
		return subject, nil
	}
	allowed, err := s.visibility.CanView(ctx, subject, actor.ID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrSubjectForbidden
	}
	return subject, nil
}

// diffAttributes lists the serialized attributes that differ between two
// snapshots of the same subject.
func diffAttributes(before, after models.Subject) []string {
	left, err := attributeMap(before)
	if err != nil {
		return nil
	}
	right, err := attributeMap(after)
	if err != nil {
		return nil
	}

	changed := make([]string, 0)
	for key, value := range right {
		if _, ignored := ignoredDiffAttributes[key]; ignored {
			continue
		}
		if !reflect.DeepEqual(left[key], value) {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

func attributeMap(subject models.Subject) (map[string]interface{}, error) {
	raw, err := json.Marshal(subject)
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]interface{})
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}
