package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/noah-isme/crm-activity-api/internal/models"
)

// ErrUnknownSubjectType is returned when no loader is registered for a type tag.
var ErrUnknownSubjectType = errors.New("unknown subject type")

// SubjectLoader resolves one subject type by id.
type SubjectLoader interface {
	Load(ctx context.Context, id uint, includeDeleted bool) (models.Subject, error)
}

// SubjectLoaderFunc adapts a function into a SubjectLoader.
type SubjectLoaderFunc func(ctx context.Context, id uint, includeDeleted bool) (models.Subject, error)

func (f SubjectLoaderFunc) Load(ctx context.Context, id uint, includeDeleted bool) (models.Subject, error) {
	return f(ctx, id, includeDeleted)
}

// SubjectRegistry maps polymorphic type tags to loaders.
type SubjectRegistry struct {
	mu      sync.RWMutex
	loaders map[string]SubjectLoader
}

// NewSubjectRegistry constructs an empty registry.
func NewSubjectRegistry() *SubjectRegistry {
	return &SubjectRegistry{loaders: make(map[string]SubjectLoader)}
}

// NewGormSubjectRegistry registers a gorm loader for every CRM subject type.
func NewGormSubjectRegistry(db *gorm.DB) *SubjectRegistry {
	registry := NewSubjectRegistry()
	registry.Register(models.SubjectAccount, gormLoader[models.Account]{db: db})
	registry.Register(models.SubjectCampaign, gormLoader[models.Campaign]{db: db})
	registry.Register(models.SubjectContact, gormLoader[models.Contact]{db: db})
	registry.Register(models.SubjectLead, gormLoader[models.Lead]{db: db})
	registry.Register(models.SubjectOpportunity, gormLoader[models.Opportunity]{db: db})
	registry.Register(models.SubjectTask, gormLoader[models.Task]{db: db})
	return registry
}

// Register binds a loader to a type tag, replacing any previous binding.
func (r *SubjectRegistry) Register(subjectType string, loader SubjectLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[subjectType] = loader
}

// Has reports whether the type tag is registered.
func (r *SubjectRegistry) Has(subjectType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaders[subjectType]
	return ok
}

// Types returns the registered type tags in sorted order.
func (r *SubjectRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.loaders))
	for subjectType := range r.loaders {
		types = append(types, subjectType)
	}
	sort.Strings(types)
	return types
}

// Resolve loads the subject behind a polymorphic reference.
// Soft-deleted subjects are only returned when includeDeleted is set.
func (r *SubjectRegistry) Resolve(ctx context.Context, ref models.SubjectRef, includeDeleted bool) (models.Subject, error) {
	r.mu.RLock()
	loader, ok := r.loaders[ref.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubjectType, ref.Type)
	}
	return loader.Load(ctx, ref.ID, includeDeleted)
}

type gormLoader[T models.Subject] struct {
	db *gorm.DB
}

func (l gormLoader[T]) Load(ctx context.Context, id uint, includeDeleted bool) (models.Subject, error) {
	query := l.db.WithContext(ctx)
	if includeDeleted {
		query = query.Unscoped()
	}

	var record T
	if err := query.First(&record, id).Error; err != nil {
		return nil, err
	}
	return record, nil
}
