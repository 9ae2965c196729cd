package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/crm-activity-api/internal/dto"
	"github.com/noah-isme/crm-activity-api/internal/models"
	"github.com/noah-isme/crm-activity-api/internal/observability"
	"github.com/noah-isme/crm-activity-api/internal/repository"
)

const (
	defaultRecentlyViewedLimit = 10
	maxRecentlyViewedScan      = 100
)

// RecentlyViewedConfig tunes the recency tracker.
type RecentlyViewedConfig struct {
	Untracked []string
	Limit     int
	CacheTTL  time.Duration
}

// RecentlyViewedTracker maintains per-user "viewed" bookkeeping.
type RecentlyViewedTracker interface {
	Tracks(subjectType string) bool
	MarkViewed(ctx context.Context, actorID *uint, subject models.Subject, info string) error
	RecentlyViewedFor(ctx context.Context, actorID uint, subjectType string, limit int) (dto.RecentlyViewedResponse, error)
	Forget(ctx context.Context, ref models.SubjectRef) error
}

type recentlyViewedService struct {
	repo       repository.ActivityRepository
	subjects   SubjectResolver
	visibility *VisibilityFilter
	cache      *redis.Client
	ttl        time.Duration
	limit      int
	untracked  map[string]struct{}
	logger     zerolog.Logger
}

// NewRecentlyViewedService builds the recency tracker. A nil cache disables caching.
func NewRecentlyViewedService(repo repository.ActivityRepository, subjects SubjectResolver, visibility *VisibilityFilter, cache *redis.Client, cfg RecentlyViewedConfig, logger zerolog.Logger) RecentlyViewedTracker {
	untracked := make(map[string]struct{}, len(cfg.Untracked))
	for _, subjectType := range cfg.Untracked {
		if trimmed := strings.ToLower(strings.TrimSpace(subjectType)); trimmed != "" {
			untracked[trimmed] = struct{}{}
		}
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultRecentlyViewedLimit
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &recentlyViewedService{
		repo:       repo,
		subjects:   subjects,
		visibility: visibility,
		cache:      cache,
		ttl:        ttl,
		limit:      limit,
		untracked:  untracked,
		logger:     logger.With().Str("component", "recently_viewed_service").Logger(),
	}
}

func (s *recentlyViewedService) Tracks(subjectType string) bool {
	_, excluded := s.untracked[subjectType]
	return !excluded
}

// MarkViewed records a viewed activity unless the subject type is untracked
// or the event has no actor.
func (s *recentlyViewedService) MarkViewed(ctx context.Context, actorID *uint, subject models.Subject, info string) error {
	if actorID == nil || subject == nil {
		return nil
	}
	ref := subject.Ref()
	if !s.Tracks(ref.Type) {
		return nil
	}

	entry := models.Activity{
		UserID:      actorID,
		SubjectType: ref.Type,
		SubjectID:   ref.ID,
		Action:      models.ActionViewed,
		Info:        info,
	}
	if err := s.repo.ReplaceViewed(ctx, &entry); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.invalidate(ctx, *actorID)
	return nil
}

// RecentlyViewedFor returns distinct subjects by most recent view. Only the
// ordered references are cached; names and visibility are resolved on every
// read, so renames and access changes apply immediately. Subjects that no
// longer resolve or that the actor may no longer see are skipped.
func (s *recentlyViewedService) RecentlyViewedFor(ctx context.Context, actorID uint, subjectType string, limit int) (dto.RecentlyViewedResponse, error) {
	if limit <= 0 || limit > maxRecentlyViewedScan {
		limit = s.limit
	}
	subjectType = strings.ToLower(strings.TrimSpace(subjectType))

	refs, hit, err := s.viewedRefs(ctx, actorID, subjectType)
	if err != nil {
		observability.RecentlyViewedRequests().WithLabelValues("error").Inc()
		return dto.RecentlyViewedResponse{}, err
	}

	items := make([]dto.RecentlyViewedItem, 0, limit)
	for _, ref := range refs {
		if len(items) == limit {
			break
		}
		subject, err := s.subjects.Resolve(ctx, ref, false)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrUnknownSubjectType) {
				continue
			}
			return dto.RecentlyViewedResponse{}, err
		}
		allowed, err := s.visibility.CanView(ctx, subject, actorID)
		if err != nil {
			return dto.RecentlyViewedResponse{}, err
		}
		if !allowed {
			continue
		}
		items = append(items, dto.RecentlyViewedItem{Type: ref.Type, ID: ref.ID, Name: subject.DisplayName()})
	}

	if hit {
		observability.RecentlyViewedRequests().WithLabelValues("hit").Inc()
	} else {
		observability.RecentlyViewedRequests().WithLabelValues("miss").Inc()
	}
	return dto.RecentlyViewedResponse{Items: items, CacheHit: hit}, nil
}

// viewedRefs loads the actor's viewed references newest-first, from the cache
// when present.
func (s *recentlyViewedService) viewedRefs(ctx context.Context, actorID uint, subjectType string) ([]models.SubjectRef, bool, error) {
	key := s.cacheKey(actorID)
	if s.cache != nil {
		cached, err := s.cache.HGet(ctx, key, subjectType).Result()
		switch {
		case err == nil && cached != "":
			var refs []models.SubjectRef
			if err := json.Unmarshal([]byte(cached), &refs); err == nil {
				return refs, true, nil
			}
		case err != nil && !errors.Is(err, redis.Nil):
			s.logger.Warn().Err(err).Msg("failed to read recently viewed cache")
		}
	}

	refs, err := s.repo.RecentlyViewed(ctx, actorID, subjectType, maxRecentlyViewedScan)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(refs); err == nil {
			pipe := s.cache.TxPipeline()
			pipe.HSet(ctx, key, subjectType, payload)
			pipe.Expire(ctx, key, s.ttl)
			if _, err := pipe.Exec(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("failed to write recently viewed cache")
			}
		}
	}
	return refs, false, nil
}

// Forget removes the subject from every user's recency list.
func (s *recentlyViewedService) Forget(ctx context.Context, ref models.SubjectRef) error {
	actors, err := s.repo.DeleteViewed(ctx, ref)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	for _, actorID := range actors {
		s.invalidate(ctx, actorID)
	}
	return nil
}

func (s *recentlyViewedService) invalidate(ctx context.Context, actorID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.cacheKey(actorID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", actorID).Msg("failed to invalidate recently viewed cache")
	}
}

func (s *recentlyViewedService) cacheKey(actorID uint) string {
	return fmt.Sprintf("crm:recently_viewed:v2:%d", actorID)
}
