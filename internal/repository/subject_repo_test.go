package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/crm-activity-api/internal/models"
)

func TestSubjectRepositoryUpdateReturnsSnapshots(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubjectRepository(db)
	ctx := context.Background()

	task := &models.Task{UserID: 1, Name: "Call back", Bucket: models.BucketDueToday}
	require.NoError(t, repo.Create(ctx, task))

	before, after, err := repo.Update(ctx, task.Ref(), map[string]interface{}{
		"bucket":  models.BucketDueTomorrow,
		"user_id": 99,
	}, nil)
	require.NoError(t, err)

	require.Equal(t, models.BucketDueToday, before.State().Bucket)
	require.Equal(t, models.BucketDueTomorrow, after.State().Bucket)
	require.Equal(t, uint(1), after.OwnerID())
}

func TestSubjectRepositoryUpdateKeepsBeforePointersIntact(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubjectRepository(db)
	ctx := context.Background()

	assignee := uint(5)
	task := &models.Task{UserID: 1, Name: "Follow up", AssignedTo: &assignee}
	require.NoError(t, repo.Create(ctx, task))

	before, after, err := repo.Update(ctx, task.Ref(), map[string]interface{}{"assigned_to": 6}, nil)
	require.NoError(t, err)
	require.Equal(t, uint(5), *before.State().AssignedTo)
	require.Equal(t, uint(6), *after.State().AssignedTo)
}

func TestSubjectRepositoryUpdateRunsCheck(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubjectRepository(db)
	ctx := context.Background()

	account := &models.Account{Ownership: models.Ownership{UserID: 1}, Name: "Acme"}
	require.NoError(t, repo.Create(ctx, account))

	rejected := errors.New("name required")
	_, _, err := repo.Update(ctx, account.Ref(), map[string]interface{}{"name": ""}, func(merged models.Subject) error {
		if merged.DisplayName() == "" {
			return rejected
		}
		return nil
	})
	require.ErrorIs(t, err, rejected)

	stored, err := repo.Get(ctx, account.Ref(), false)
	require.NoError(t, err)
	require.Equal(t, "Acme", stored.DisplayName())
}

func TestSubjectRepositoryDeleteIsSoft(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubjectRepository(db)
	registry := NewGormSubjectRegistry(db)
	ctx := context.Background()

	lead := &models.Lead{Ownership: models.Ownership{UserID: 1}, FirstName: "Jane", LastName: "Doe"}
	require.NoError(t, repo.Create(ctx, lead))
	require.Equal(t, models.LeadStatusNew, lead.Status)

	removed, err := repo.Delete(ctx, lead.Ref())
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", removed.DisplayName())

	_, err = registry.Resolve(ctx, lead.Ref(), false)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	resolved, err := registry.Resolve(ctx, lead.Ref(), true)
	require.NoError(t, err)
	require.Equal(t, lead.Ref(), resolved.Ref())

	_, err = repo.Delete(ctx, lead.Ref())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubjectRegistryRejectsUnknownTypes(t *testing.T) {
	db := setupTestDB(t)
	registry := NewGormSubjectRegistry(db)

	require.Equal(t, []string{"account", "campaign", "contact", "lead", "opportunity", "task"}, registry.Types())
	require.False(t, registry.Has("invoice"))

	_, err := registry.Resolve(context.Background(), models.SubjectRef{Type: "invoice", ID: 1}, true)
	require.ErrorIs(t, err, ErrUnknownSubjectType)

	_, err = NewSubjectRepository(db).New("invoice")
	require.ErrorIs(t, err, ErrUnknownSubjectType)
}

func TestSubjectRegistryCustomLoader(t *testing.T) {
	registry := NewSubjectRegistry()
	registry.Register("external", SubjectLoaderFunc(func(_ context.Context, id uint, _ bool) (models.Subject, error) {
		return models.Account{ID: id, Name: "External"}, nil
	}))

	subject, err := registry.Resolve(context.Background(), models.SubjectRef{Type: "external", ID: 3}, false)
	require.NoError(t, err)
	require.Equal(t, "External", subject.DisplayName())
}

func TestPermissionRepositoryReplace(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPermissionRepository(db)
	ctx := context.Background()
	ref := models.SubjectRef{Type: models.SubjectAccount, ID: 1}

	require.NoError(t, repo.Replace(ctx, ref, []uint{3, 2, 3, 0}))
	ids, err := repo.UserIDs(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, []uint{2, 3}, ids)

	require.NoError(t, repo.Replace(ctx, ref, []uint{4}))
	ids, err = repo.UserIDs(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, []uint{4}, ids)

	require.NoError(t, repo.DeleteFor(ctx, ref))
	ids, err = repo.UserIDs(ctx, ref)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestCommentRepositoryListFor(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()
	ref := models.SubjectRef{Type: models.SubjectOpportunity, ID: 7}

	require.NoError(t, repo.Create(ctx, &models.Comment{UserID: 1, CommentableType: ref.Type, CommentableID: ref.ID, Comment: "first"}))
	require.NoError(t, repo.Create(ctx, &models.Comment{UserID: 2, CommentableType: ref.Type, CommentableID: ref.ID, Comment: "second"}))
	require.NoError(t, repo.Create(ctx, &models.Comment{UserID: 2, CommentableType: ref.Type, CommentableID: 8, Comment: "other"}))

	comments, err := repo.ListFor(ctx, ref)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	require.Equal(t, "first", comments[0].Comment)
}
