package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/crm-activity-api/internal/models"
)

type subjectKind struct {
	newRecord func() models.Subject
	writable  []string
}

var ownershipColumns = []string{"assigned_to", "access"}

var subjectKinds = map[string]subjectKind{
	models.SubjectAccount: {
		newRecord: func() models.Subject { return &models.Account{} },
		writable:  append([]string{"name", "website", "email", "phone"}, ownershipColumns...),
	},
	models.SubjectCampaign: {
		newRecord: func() models.Subject { return &models.Campaign{} },
		writable:  append([]string{"name", "status", "budget", "starts_on", "ends_on"}, ownershipColumns...),
	},
	models.SubjectContact: {
		newRecord: func() models.Subject { return &models.Contact{} },
		writable:  append([]string{"account_id", "first_name", "last_name", "title", "email", "phone"}, ownershipColumns...),
	},
	models.SubjectLead: {
		newRecord: func() models.Subject { return &models.Lead{} },
		writable:  append([]string{"campaign_id", "first_name", "last_name", "company", "email", "source", "status"}, ownershipColumns...),
	},
	models.SubjectOpportunity: {
		newRecord: func() models.Subject { return &models.Opportunity{} },
		writable:  append([]string{"account_id", "name", "stage", "amount", "discount", "probability", "closes_on"}, ownershipColumns...),
	},
	models.SubjectTask: {
		newRecord: func() models.Subject { return &models.Task{} },
		writable:  []string{"assigned_to", "asset_type", "asset_id", "name", "category", "bucket", "due_at", "completed_at"},
	},
}

// SubjectRepository stores CRM subjects addressed by polymorphic reference.
type SubjectRepository interface {
	New(subjectType string) (models.Subject, error)
	Writable(subjectType string) []string
	Create(ctx context.Context, subject models.Subject) error
	Get(ctx context.Context, ref models.SubjectRef, includeDeleted bool) (models.Subject, error)
	Update(ctx context.Context, ref models.SubjectRef, attrs map[string]interface{}, check func(models.Subject) error) (models.Subject, models.Subject, error)
	Delete(ctx context.Context, ref models.SubjectRef) (models.Subject, error)
}

type subjectRepository struct {
	db *gorm.DB
}

// NewSubjectRepository constructs the subject repository.
func NewSubjectRepository(db *gorm.DB) SubjectRepository {
	return &subjectRepository{db: db}
}

// New returns an empty pointer record of the given type for decoding.
func (r *subjectRepository) New(subjectType string) (models.Subject, error) {
	kind, ok := subjectKinds[subjectType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubjectType, subjectType)
	}
	return kind.newRecord(), nil
}

// Writable lists the columns callers may assign on the given type.
func (r *subjectRepository) Writable(subjectType string) []string {
	kind, ok := subjectKinds[subjectType]
	if !ok {
		return nil
	}
	return append([]string(nil), kind.writable...)
}

func (r *subjectRepository) Create(ctx context.Context, subject models.Subject) error {
	return r.db.WithContext(ctx).Create(subject).Error
}

func (r *subjectRepository) Get(ctx context.Context, ref models.SubjectRef, includeDeleted bool) (models.Subject, error) {
	record, err := r.New(ref.Type)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx)
	if includeDeleted {
		query = query.Unscoped()
	}
	if err := query.First(record, ref.ID).Error; err != nil {
		return nil, err
	}
	return dereference(record), nil
}

// Update applies attrs onto the stored record and returns the before/after snapshots.
// Keys outside the writable column set are ignored. check runs against the
// merged record before it is written.
func (r *subjectRepository) Update(ctx context.Context, ref models.SubjectRef, attrs map[string]interface{}, check func(models.Subject) error) (models.Subject, models.Subject, error) {
	kind, ok := subjectKinds[ref.Type]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSubjectType, ref.Type)
	}

	permitted := pickColumns(attrs, kind.writable)

	var before, after models.Subject
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original := kind.newRecord()
		if err := tx.First(original, ref.ID).Error; err != nil {
			return err
		}
		before = dereference(original)

		if len(permitted) == 0 {
			after = before
			return nil
		}

		// Decoding reuses pointer fields in place, so merge into a separate copy.
		current := kind.newRecord()
		if err := tx.First(current, ref.ID).Error; err != nil {
			return err
		}
		payload, err := json.Marshal(permitted)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(payload, current); err != nil {
			return fmt.Errorf("decode %s attributes: %w", ref.Type, err)
		}
		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}

		columns := make([]string, 0, len(permitted))
		for column := range permitted {
			columns = append(columns, column)
		}
		if err := tx.Model(current).Select(columns).Updates(current).Error; err != nil {
			return err
		}

		reloaded := kind.newRecord()
		if err := tx.First(reloaded, ref.ID).Error; err != nil {
			return err
		}
		after = dereference(reloaded)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return before, after, nil
}

// Delete soft-deletes the subject and returns its last known state.
func (r *subjectRepository) Delete(ctx context.Context, ref models.SubjectRef) (models.Subject, error) {
	var removed models.Subject
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := r.New(ref.Type)
		if err != nil {
			return err
		}
		if err := tx.First(record, ref.ID).Error; err != nil {
			return err
		}
		if err := tx.Delete(record).Error; err != nil {
			return err
		}
		removed = dereference(record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func pickColumns(attrs map[string]interface{}, writable []string) map[string]interface{} {
	permitted := make(map[string]interface{}, len(attrs))
	for _, column := range writable {
		if value, ok := attrs[column]; ok {
			permitted[column] = value
		}
	}
	return permitted
}

// dereference turns a pointer record into the value form handed to callers.
func dereference(subject models.Subject) models.Subject {
	switch record := subject.(type) {
	case *models.Account:
		return *record
	case *models.Campaign:
		return *record
	case *models.Contact:
		return *record
	case *models.Lead:
		return *record
	case *models.Opportunity:
		return *record
	case *models.Task:
		return *record
	default:
		return subject
	}
}
