package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/crm-activity-api/internal/dto"
	"github.com/noah-isme/crm-activity-api/internal/models"
	"github.com/noah-isme/crm-activity-api/internal/observability"
	"github.com/noah-isme/crm-activity-api/internal/repository"
)

var (
	// ErrPersistence wraps storage failures of the audit trail.
	ErrPersistence = errors.New("activity persistence failed")
	// ErrSubjectNotFound indicates a subject reference that does not resolve.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrInvalidAction indicates an event that could not be classified.
	ErrInvalidAction = errors.New("unclassifiable activity event")
	// ErrInvalidFilter indicates malformed activity query options.
	ErrInvalidFilter = errors.New("invalid activity filter")
)

const defaultActivityWindow = 48 * time.Hour

var namedDurations = map[string]time.Duration{
	"one_hour":  time.Hour,
	"one_day":   24 * time.Hour,
	"two_days":  48 * time.Hour,
	"one_week":  7 * 24 * time.Hour,
	"two_weeks": 14 * 24 * time.Hour,
	"one_month": 30 * 24 * time.Hour,
}

// ActivityEntry captures the details required to persist an audit entry.
type ActivityEntry struct {
	ActorID *uint
	Subject models.SubjectRef
	Action  models.ActivityAction
	Info    string
	Changes []string
}

// LogResult reports what a lifecycle event produced. Audit failures never
// surface as errors; they are collected in Warnings instead.
type LogResult struct {
	Activity *models.Activity
	Warnings []string
}

// ActivityRecorder appends raw audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (models.Activity, error)
}

// ActivityService is the entry point for lifecycle events and audit queries.
type ActivityService interface {
	ActivityRecorder
	Log(ctx context.Context, event LifecycleEvent) LogResult
	Query(ctx context.Context, filter repository.ActivityFilter) ([]models.Activity, int64, error)
	Latest(ctx context.Context, viewerID uint, req dto.ActivityListRequest) (dto.ActivityListResponse, error)
	EachVisible(ctx context.Context, viewerID uint, req dto.ActivityListRequest, fn func([]models.Activity) error) error
	CheckFilter(req dto.ActivityListRequest) error
	Purge(ctx context.Context, req dto.ActivityPurgeRequest) (dto.ActivityPurgeResponse, error)
}

// ActivityServiceConfig tunes the activity service.
type ActivityServiceConfig struct {
	DefaultWindow time.Duration
	BatchSize     int
}

type activityService struct {
	repo       repository.ActivityRepository
	subjects   SubjectResolver
	classifier *ActionClassifier
	visibility *VisibilityFilter
	recent     RecentlyViewedTracker
	publisher  ActivityPublisher
	validator  *validator.Validate
	window     time.Duration
	batchSize  int
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewActivityService constructs the activity service. publisher may be nil.
func NewActivityService(
	repo repository.ActivityRepository,
	subjects SubjectResolver,
	classifier *ActionClassifier,
	visibility *VisibilityFilter,
	recent RecentlyViewedTracker,
	publisher ActivityPublisher,
	validate *validator.Validate,
	cfg ActivityServiceConfig,
	logger zerolog.Logger,
) ActivityService {
	if classifier == nil {
		classifier = NewActionClassifier()
	}
	if publisher == nil {
		publisher = noopActivityPublisher{}
	}
	window := cfg.DefaultWindow
	if window <= 0 {
		window = defaultActivityWindow
	}

	return &activityService{
		repo:       repo,
		subjects:   subjects,
		classifier: classifier,
		visibility: visibility,
		recent:     recent,
		publisher:  publisher,
		validator:  validate,
		window:     window,
		batchSize:  cfg.BatchSize,
		logger:     logger.With().Str("component", "activity_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/crm-activity-api/internal/service/activity"),
		now:        time.Now,
	}
}

// Record appends one activity row. The subject must resolve at creation time,
// soft-deleted subjects included.
func (s *activityService) Record(ctx context.Context, entry ActivityEntry) (models.Activity, error) {
	if entry.Subject.IsZero() {
		return models.Activity{}, fmt.Errorf("%w: empty subject reference", ErrSubjectNotFound)
	}
	if !entry.Action.Valid() {
		return models.Activity{}, fmt.Errorf("%w: %q", ErrInvalidAction, entry.Action)
	}

	if _, err := s.subjects.Resolve(ctx, entry.Subject, true); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrUnknownSubjectType) {
			return models.Activity{}, fmt.Errorf("%w: %s", ErrSubjectNotFound, entry.Subject)
		}
		return models.Activity{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	model := models.Activity{
		UserID:      entry.ActorID,
		SubjectType: entry.Subject.Type,
		SubjectID:   entry.Subject.ID,
		Action:      entry.Action,
		Info:        entry.Info,
		Changes:     models.EncodeChanges(entry.Changes),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Str("subject", entry.Subject.String()).Msg("failed to persist activity")
		return models.Activity{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return model, nil
}

// Log classifies a lifecycle event, appends the activity and maintains the
// recency bookkeeping around it.
func (s *activityService) Log(ctx context.Context, event LifecycleEvent) LogResult {
	start := time.Now()
	defer func() {
		observability.ActivityLogLatency().Observe(time.Since(start).Seconds())
	}()

	var result LogResult

	classification, err := s.classifier.Classify(event)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			s.logger.Warn().Err(err).Str("event", string(event.Kind)).Msg("skipping activity without subject")
			result.Warnings = append(result.Warnings, "activity skipped: subject not found")
			return result
		}
		s.logger.Warn().Err(err).Str("event", string(event.Kind)).Msg("recording unclassified event as custom")
		result.Warnings = append(result.Warnings, err.Error())
	}

	ref := event.Subject.Ref()
	spanCtx, span := s.tracer.Start(ctx, "activities.log", trace.WithAttributes(
		attribute.String("activity.action", string(classification.Action)),
		attribute.String("activity.subject", ref.String()),
	))
	defer span.End()

	logger := s.logger.With().
		Str("action", string(classification.Action)).
		Str("subject", ref.String()).
		Logger()

	if classification.Action != models.ActionViewed {
		entry := ActivityEntry{
			ActorID: event.ActorID,
			Subject: ref,
			Action:  classification.Action,
			Info:    classification.Info,
			Changes: event.Changes,
		}
		activity, err := s.recordWithRetry(spanCtx, entry)
		if err != nil {
			span.RecordError(err)
			logger.Warn().Err(err).Msg("audit trail entry dropped")
			result.Warnings = append(result.Warnings, "activity not recorded: "+err.Error())
		} else {
			result.Activity = &activity
			if err := s.publisher.Publish(spanCtx, activity); err != nil {
				logger.Warn().Err(err).Msg("failed to publish activity event")
			}
		}
	}

	switch classification.Action {
	case models.ActionCreated, models.ActionUpdated, models.ActionViewed:
		if err := s.retryOnce(func() error {
			return s.recent.MarkViewed(spanCtx, event.ActorID, event.Subject, classification.Info)
		}); err != nil {
			span.RecordError(err)
			logger.Warn().Err(err).Msg("failed to mark subject as recently viewed")
			result.Warnings = append(result.Warnings, "recently viewed not updated: "+err.Error())
		}
	case models.ActionDeleted:
		if err := s.retryOnce(func() error {
			return s.recent.Forget(spanCtx, ref)
		}); err != nil {
			span.RecordError(err)
			logger.Warn().Err(err).Msg("failed to drop recently viewed entries")
			result.Warnings = append(result.Warnings, "recently viewed not pruned: "+err.Error())
		}
	}

	return result
}

func (s *activityService) recordWithRetry(ctx context.Context, entry ActivityEntry) (models.Activity, error) {
	action := string(entry.Action)
	activity, err := s.Record(ctx, entry)
	if err == nil {
		observability.ActivityRecords().WithLabelValues(action, "ok").Inc()
		return activity, nil
	}
	if !errors.Is(err, ErrPersistence) {
		observability.ActivityRecords().WithLabelValues(action, "rejected").Inc()
		return models.Activity{}, err
	}

	activity, err = s.Record(ctx, entry)
	if err != nil {
		observability.ActivityRecords().WithLabelValues(action, "failed").Inc()
		return models.Activity{}, err
	}
	observability.ActivityRecords().WithLabelValues(action, "retried").Inc()
	return activity, nil
}

func (s *activityService) retryOnce(fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, ErrPersistence) {
		return err
	}
	return fn()
}

func (s *activityService) Query(ctx context.Context, filter repository.ActivityFilter) ([]models.Activity, int64, error) {
	return s.repo.List(ctx, filter)
}

// Latest returns the page of activities visible to viewerID. Visibility is
// applied before pagination so totals only count visible rows.
func (s *activityService) Latest(ctx context.Context, viewerID uint, req dto.ActivityListRequest) (dto.ActivityListResponse, error) {
	page := maxInt(req.Page, 1)
	pageSize := clampPageSize(req.PageSize)
	offset := (page - 1) * pageSize

	items := make([]dto.ActivityResponse, 0, pageSize)
	var total int64
	err := s.EachVisible(ctx, viewerID, req, func(batch []models.Activity) error {
		for _, activity := range batch {
			if total >= int64(offset) && len(items) < pageSize {
				items = append(items, dto.NewActivityResponse(activity))
			}
			total++
		}
		return nil
	})
	if err != nil {
		return dto.ActivityListResponse{}, err
	}

	pagination := dto.PaginationMeta{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}

	return dto.ActivityListResponse{Items: items, Pagination: pagination}, nil
}

// EachVisible streams the visible activities matching req newest-first.
func (s *activityService) EachVisible(ctx context.Context, viewerID uint, req dto.ActivityListRequest, fn func([]models.Activity) error) error {
	filter, err := s.filterFor(req)
	if err != nil {
		return err
	}

	return s.repo.Each(ctx, filter, s.batchSize, func(batch []models.Activity) error {
		visible, err := s.visibility.VisibleTo(ctx, batch, viewerID)
		if err != nil {
			return err
		}
		if len(visible) == 0 {
			return nil
		}
		return fn(visible)
	})
}

func (s *activityService) Purge(ctx context.Context, req dto.ActivityPurgeRequest) (dto.ActivityPurgeResponse, error) {
	if s.validator != nil {
		if err := s.validator.Struct(req); err != nil {
			return dto.ActivityPurgeResponse{}, err
		}
	}

	actions, err := validActions(req.Actions)
	if err != nil {
		return dto.ActivityPurgeResponse{}, err
	}

	criteria := repository.ActivityPurgeCriteria{
		ActorID:     req.UserID,
		Actions:     actions,
		SubjectType: strings.TrimSpace(req.SubjectType),
		Before:      req.Before,
	}
	if req.SubjectID != nil {
		if criteria.SubjectType == "" {
			return dto.ActivityPurgeResponse{}, fmt.Errorf("%w: subject_id requires subject_type", ErrInvalidFilter)
		}
		criteria.Subject = &models.SubjectRef{Type: criteria.SubjectType, ID: *req.SubjectID}
	}

	deleted, err := s.repo.DeleteAllMatching(ctx, criteria)
	if err != nil {
		return dto.ActivityPurgeResponse{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.logger.Info().Int64("deleted", deleted).Msg("activities purged")
	return dto.ActivityPurgeResponse{Deleted: deleted}, nil
}

// CheckFilter reports whether req would be accepted by Latest and EachVisible.
func (s *activityService) CheckFilter(req dto.ActivityListRequest) error {
	_, err := s.filterFor(req)
	return err
}

func (s *activityService) filterFor(req dto.ActivityListRequest) (repository.ActivityFilter, error) {
	req.Asset = strings.ToLower(strings.TrimSpace(req.Asset))
	if s.validator != nil {
		if err := s.validator.Struct(req); err != nil {
			return repository.ActivityFilter{}, err
		}
	}

	actions, err := validActions(req.Actions)
	if err != nil {
		return repository.ActivityFilter{}, err
	}
	excluded, err := validActions(req.ExcludeActions)
	if err != nil {
		return repository.ActivityFilter{}, err
	}

	filter := repository.ActivityFilter{
		ActorID:        req.UserID,
		Actions:        actions,
		ExcludeActions: excluded,
		SubjectType:    req.Asset,
	}

	window, err := s.parseWindow(req.Duration)
	if err != nil {
		return repository.ActivityFilter{}, err
	}
	if window > 0 {
		since := s.now().Add(-window)
		filter.Since = &since
	}

	return filter, nil
}

// parseWindow accepts named windows ("one_week"), Go durations ("36h") or
// "all" for an unbounded window.
func (s *activityService) parseWindow(value string) (time.Duration, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return s.window, nil
	}
	if trimmed == "all" {
		return 0, nil
	}
	if window, ok := namedDurations[trimmed]; ok {
		return window, nil
	}
	window, err := time.ParseDuration(trimmed)
	if err != nil || window <= 0 {
		return 0, fmt.Errorf("%w: duration %q", ErrInvalidFilter, value)
	}
	return window, nil
}

func validActions(values []string) ([]models.ActivityAction, error) {
	actions := dto.ParseActions(values)
	for _, action := range actions {
		if !action.Valid() {
			return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidFilter, action)
		}
	}
	return actions, nil
}

func clampPageSize(size int) int {
	if size <= 0 {
		return 20
	}
	if size > 200 {
		return 200
	}
	return size
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
