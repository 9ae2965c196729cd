package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/crm-activity-api/internal/models"
	"github.com/noah-isme/crm-activity-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// flakyActivityRepo fails the first failures calls to Create.
type flakyActivityRepo struct {
	repository.ActivityRepository
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *flakyActivityRepo) Create(ctx context.Context, entry *models.Activity) error {
	r.mu.Lock()
	r.calls++
	fail := r.failures != 0
	if r.failures > 0 {
		r.failures--
	}
	r.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return r.ActivityRepository.Create(ctx, entry)
}

type recordingPublisher struct {
	published []models.Activity
}

func (p *recordingPublisher) Publish(_ context.Context, activity models.Activity) error {
	p.published = append(p.published, activity)
	return nil
}

type testStack struct {
	db         *gorm.DB
	repo       repository.ActivityRepository
	registry   *repository.SubjectRegistry
	visibility *VisibilityFilter
	recent     RecentlyViewedTracker
	activities ActivityService
	subjects   SubjectService
	publisher  *recordingPublisher
	cache      *miniredis.Miniredis
}

type stackOption func(*stackConfig)

type stackConfig struct {
	repo func(repository.ActivityRepository) repository.ActivityRepository
}

func withActivityRepo(wrap func(repository.ActivityRepository) repository.ActivityRepository) stackOption {
	return func(cfg *stackConfig) { cfg.repo = wrap }
}

func newTestStack(t *testing.T, opts ...stackOption) *testStack {
	t.Helper()
	cfg := stackConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := setupServiceDB(t)

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var repo repository.ActivityRepository = repository.NewActivityRepository(db)
	if cfg.repo != nil {
		repo = cfg.repo(repo)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	registry := repository.NewGormSubjectRegistry(db)
	permissions := repository.NewPermissionRepository(db)
	visibility := NewVisibilityFilter(registry, permissions, testLogger())
	recent := NewRecentlyViewedService(repo, registry, visibility, client, RecentlyViewedConfig{Untracked: []string{models.SubjectTask}}, testLogger())
	publisher := &recordingPublisher{}
	activities := NewActivityService(repo, registry, NewActionClassifier(), visibility, recent, publisher, validate, ActivityServiceConfig{BatchSize: 2}, testLogger())
	subjects := NewSubjectService(repository.NewSubjectRepository(db), permissions, repository.NewCommentRepository(db), visibility, activities, validate, testLogger())

	return &testStack{
		db:         db,
		repo:       repo,
		registry:   registry,
		visibility: visibility,
		recent:     recent,
		activities: activities,
		subjects:   subjects,
		publisher:  publisher,
		cache:      server,
	}
}

// actionsFor lists the actions recorded against ref, newest first.
func (s *testStack) actionsFor(t *testing.T, ref models.SubjectRef) []models.ActivityAction {
	t.Helper()
	entries, _, err := s.activities.Query(context.Background(), repository.ActivityFilter{Subject: &ref})
	require.NoError(t, err)
	actions := make([]models.ActivityAction, 0, len(entries))
	for _, entry := range entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

func (s *testStack) create(t *testing.T, actor Actor, subjectType string, attrs map[string]interface{}) models.SubjectRef {
	t.Helper()
	response, err := s.subjects.Create(context.Background(), actor, subjectType, attrs)
	require.NoError(t, err)
	require.Empty(t, response.Warnings)
	return models.SubjectRef{Type: response.Type, ID: response.ID}
}
