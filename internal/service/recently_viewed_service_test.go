package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crm-activity-api/internal/dto"
	"github.com/noah-isme/crm-activity-api/internal/models"
	"github.com/noah-isme/crm-activity-api/internal/repository"
)

func recentKeys(items []dto.RecentlyViewedItem) []models.SubjectRef {
	refs := make([]models.SubjectRef, 0, len(items))
	for _, item := range items {
		refs = append(refs, models.SubjectRef{Type: item.Type, ID: item.ID})
	}
	return refs
}

func TestRecentlyViewedOrdersDistinctSubjects(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	owner := Actor{ID: 1}

	first := stack.create(t, owner, models.SubjectAccount, map[string]interface{}{"name": "First"})
	second := stack.create(t, owner, models.SubjectContact, map[string]interface{}{"first_name": "Jane", "last_name": "Doe"})
	_, err := stack.subjects.Show(ctx, owner, first)
	require.NoError(t, err)

	recent, err := stack.recent.RecentlyViewedFor(ctx, owner.ID, "", 0)
	require.NoError(t, err)
	require.False(t, recent.CacheHit)
	require.Equal(t, []models.SubjectRef{first, second}, recentKeys(recent.Items))
	require.Equal(t, "First", recent.Items[0].Name)

	filtered, err := stack.recent.RecentlyViewedFor(ctx, owner.ID, models.SubjectContact, 0)
	require.NoError(t, err)
	require.Equal(t, []models.SubjectRef{second}, recentKeys(filtered.Items))

	limited, err := stack.recent.RecentlyViewedFor(ctx, owner.ID, "", 1)
	require.NoError(t, err)
	require.Equal(t, []models.SubjectRef{first}, recentKeys(limited.Items))

	var viewed int64
	require.NoError(t, stack.db.Model(&models.Activity{}).
		Where("subject_type = ? AND subject_id = ? AND action = ?", first.Type, first.ID, models.ActionViewed).
		Count(&viewed).Error)
	require.Equal(t, int64(1), viewed)
}

func TestRecentlyViewedCachesUntilNextView(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	owner := Actor{ID: 1}

	first := stack.create(t, owner, models.SubjectAccount, map[string]interface{}{"name": "First"})

	miss, err := stack.recent.RecentlyViewedFor(ctx, owner.ID, "", 0)
	require.NoError(t, err)
	require.False(t, miss.CacheHit)

	hit, err := stack.recent.RecentlyViewedFor(ctx, owner.ID, "", 0)
	require.NoError(t, err)
	require.True(t, hit.CacheHit)
	require.Equal(t, miss.Items, hit.Items)
	require.True(t, stack.cache.Exists("crm:recently_viewed:v2:1"))

	second := stack.create(t, owner, models.SubjectAccount, map[string]interface{}{"name": "Second"})
	require.False(t, stack.cache.Exists("crm:recently_viewed:v2:1"))

	fresh, err := stack.recent.RecentlyViewedFor(ctx, owner.ID, "", 0)
	require.NoError(t, err)
	require.False(t, fresh.CacheHit)
	require.Equal(t, []models.SubjectRef{second, first}, recentKeys(fresh.Items))
}

func TestRecentlyViewedCacheExpires(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	stack.create(t, Actor{ID: 1}, models.SubjectAccount, map[string]interface{}{"name": "First"})

	_, err := stack.recent.RecentlyViewedFor(ctx, 1, "", 0)
	require.NoError(t, err)
	require.True(t, stack.cache.Exists("crm:recently_viewed:v2:1"))

	stack.cache.FastForward(time.Minute + time.Second)
	require.False(t, stack.cache.Exists("crm:recently_viewed:v2:1"))
}

func TestRecentlyViewedWorksWithoutCache(t *testing.T) {
	db := setupServiceDB(t)
	ctx := context.Background()
	repo := repository.NewActivityRepository(db)
	registry := repository.NewGormSubjectRegistry(db)
	visibility := NewVisibilityFilter(registry, repository.NewPermissionRepository(db), testLogger())
	tracker := NewRecentlyViewedService(repo, registry, visibility, nil, RecentlyViewedConfig{}, testLogger())

	account := models.Account{Name: "Acme", Ownership: models.Ownership{UserID: 1}}
	require.NoError(t, db.Create(&account).Error)

	actor := uint(1)
	require.NoError(t, tracker.MarkViewed(ctx, &actor, account, "Acme"))
	require.NoError(t, tracker.MarkViewed(ctx, &actor, account, "Acme"))

	recent, err := tracker.RecentlyViewedFor(ctx, actor, "", 0)
	require.NoError(t, err)
	require.False(t, recent.CacheHit)
	require.Equal(t, []models.SubjectRef{account.Ref()}, recentKeys(recent.Items))
}

func TestMarkViewedSkipsUntrackedAndAnonymous(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	task := models.Task{Name: "Call", UserID: 1}
	require.NoError(t, stack.db.Create(&task).Error)
	account := models.Account{Name: "Acme", Ownership: models.Ownership{UserID: 1}}
	require.NoError(t, stack.db.Create(&account).Error)

	actor := uint(1)
	require.False(t, stack.recent.Tracks(models.SubjectTask))
	require.True(t, stack.recent.Tracks(models.SubjectAccount))
	require.NoError(t, stack.recent.MarkViewed(ctx, &actor, task, "Call"))
	require.NoError(t, stack.recent.MarkViewed(ctx, nil, account, "Acme"))

	var count int64
	require.NoError(t, stack.db.Model(&models.Activity{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRecentlyViewedSkipsDestroyedSubjects(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	account := models.Account{Name: "Acme", Ownership: models.Ownership{UserID: 1}}
	require.NoError(t, stack.db.Create(&account).Error)
	actor := uint(1)
	require.NoError(t, stack.recent.MarkViewed(ctx, &actor, account, "Acme"))

	// Soft delete without Forget leaves a dangling viewed row.
	require.NoError(t, stack.db.Delete(&account).Error)

	recent, err := stack.recent.RecentlyViewedFor(ctx, actor, "", 0)
	require.NoError(t, err)
	require.Empty(t, recent.Items)
}

func TestForgetInvalidatesEveryViewer(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	account := models.Account{Name: "Acme", Ownership: models.Ownership{UserID: 1}}
	require.NoError(t, stack.db.Create(&account).Error)

	for _, id := range []uint{1, 2} {
		viewer := id
		require.NoError(t, stack.recent.MarkViewed(ctx, &viewer, account, "Acme"))
		_, err := stack.recent.RecentlyViewedFor(ctx, viewer, "", 0)
		require.NoError(t, err)
	}
	require.True(t, stack.cache.Exists("crm:recently_viewed:v2:2"))

	require.NoError(t, stack.recent.Forget(ctx, account.Ref()))
	require.False(t, stack.cache.Exists("crm:recently_viewed:v2:1"))
	require.False(t, stack.cache.Exists("crm:recently_viewed:v2:2"))

	recent, err := stack.recent.RecentlyViewedFor(ctx, 2, "", 0)
	require.NoError(t, err)
	require.Empty(t, recent.Items)
}

func TestRecentlyViewedDropsSubjectsMadePrivate(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	owner := Actor{ID: 1}
	viewer := Actor{ID: 2}

	account := stack.create(t, owner, models.SubjectAccount, map[string]interface{}{"name": "Acme", "access": "Public"})
	_, err := stack.subjects.Show(ctx, viewer, account)
	require.NoError(t, err)

	before, err := stack.recent.RecentlyViewedFor(ctx, viewer.ID, "", 0)
	require.NoError(t, err)
	require.Equal(t, []models.SubjectRef{account}, recentKeys(before.Items))

	_, err = stack.subjects.Update(ctx, owner, account, map[string]interface{}{"access": "Private", "name": "Acme Secret Merger"})
	require.NoError(t, err)

	after, err := stack.recent.RecentlyViewedFor(ctx, viewer.ID, "", 0)
	require.NoError(t, err)
	require.True(t, after.CacheHit)
	require.Empty(t, after.Items)

	own, err := stack.recent.RecentlyViewedFor(ctx, owner.ID, "", 0)
	require.NoError(t, err)
	require.Equal(t, []models.SubjectRef{account}, recentKeys(own.Items))
	require.Equal(t, "Acme Secret Merger", own.Items[0].Name)
}

func TestRecentlyViewedCacheHitResolvesCurrentName(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	owner := Actor{ID: 1}
	viewer := Actor{ID: 2}

	account := stack.create(t, owner, models.SubjectAccount, map[string]interface{}{"name": "Acme", "access": "Public"})
	_, err := stack.subjects.Show(ctx, viewer, account)
	require.NoError(t, err)

	cached, err := stack.recent.RecentlyViewedFor(ctx, viewer.ID, "", 0)
	require.NoError(t, err)
	require.Equal(t, "Acme", cached.Items[0].Name)

	_, err = stack.subjects.Update(ctx, owner, account, map[string]interface{}{"name": "Renamed"})
	require.NoError(t, err)

	renamed, err := stack.recent.RecentlyViewedFor(ctx, viewer.ID, "", 0)
	require.NoError(t, err)
	require.True(t, renamed.CacheHit)
	require.Len(t, renamed.Items, 1)
	require.Equal(t, "Renamed", renamed.Items[0].Name)
}
