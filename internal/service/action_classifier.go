package service

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/crm-activity-api/internal/models"
)

const maxInfoLength = 255

// EventKind identifies the lifecycle hook that produced an event.
type EventKind string

const (
	EventCreate  EventKind = "create"
	EventUpdate  EventKind = "update"
	EventDestroy EventKind = "destroy"
	EventComment EventKind = "comment"
	EventView    EventKind = "view"
)

// LifecycleEvent describes one lifecycle transition of a tracked subject.
// Subject carries the state at event time; Before is only set for updates.
type LifecycleEvent struct {
	Kind    EventKind
	ActorID *uint
	Subject models.Subject
	Before  *models.LifecycleState
	Changes []string
}

// Classification is the symbolic action and label derived from an event.
type Classification struct {
	Action models.ActivityAction
	Info   string
}

// ActionRule refines a generic update into a more specific action.
type ActionRule struct {
	Action models.ActivityAction
	Match  func(before, after models.LifecycleState) bool
}

// DefaultUpdateRules are evaluated in order; the first match wins.
var DefaultUpdateRules = []ActionRule{
	{Action: models.ActionCompleted, Match: completedTransition},
	{Action: models.ActionReassigned, Match: assigneeChanged},
	{Action: models.ActionRescheduled, Match: scheduleChanged},
	{Action: models.ActionRejected, Match: rejectedTransition},
}

// ActionClassifier maps lifecycle events onto audit actions.
type ActionClassifier struct {
	rules     []ActionRule
	sanitizer *bluemonday.Policy
}

// NewActionClassifier builds a classifier. DefaultUpdateRules apply when rules is empty.
func NewActionClassifier(rules ...ActionRule) *ActionClassifier {
	if len(rules) == 0 {
		rules = DefaultUpdateRules
	}
	return &ActionClassifier{
		rules:     rules,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Classify derives exactly one action plus the point-in-time info label.
// Unknown event kinds produce ActionCustom together with ErrInvalidAction.
func (c *ActionClassifier) Classify(event LifecycleEvent) (Classification, error) {
	if event.Subject == nil {
		return Classification{}, fmt.Errorf("%w: event has no subject", ErrSubjectNotFound)
	}

	result := Classification{Info: c.Label(event.Subject)}

	switch event.Kind {
	case EventCreate:
		result.Action = models.ActionCreated
	case EventDestroy:
		result.Action = models.ActionDeleted
	case EventComment:
		result.Action = models.ActionCommented
	case EventView:
		result.Action = models.ActionViewed
	case EventUpdate:
		result.Action = c.classifyUpdate(event.Before, event.Subject.State())
	default:
		result.Action = models.ActionCustom
		return result, fmt.Errorf("%w: %q", ErrInvalidAction, event.Kind)
	}

	return result, nil
}

// Label renders the subject's human-readable name as plain text.
func (c *ActionClassifier) Label(subject models.Subject) string {
	label := strings.TrimSpace(html.UnescapeString(c.sanitizer.Sanitize(subject.DisplayName())))
	if utf8.RuneCountInString(label) > maxInfoLength {
		runes := []rune(label)
		label = string(runes[:maxInfoLength])
	}
	return label
}

func (c *ActionClassifier) classifyUpdate(before *models.LifecycleState, after models.LifecycleState) models.ActivityAction {
	if before == nil {
		return models.ActionUpdated
	}
	for _, rule := range c.rules {
		if rule.Match != nil && rule.Match(*before, after) {
			return rule.Action
		}
	}
	return models.ActionUpdated
}

func completedTransition(before, after models.LifecycleState) bool {
	return before.CompletedAt == nil && after.CompletedAt != nil
}

func assigneeChanged(before, after models.LifecycleState) bool {
	return !sameUint(before.AssignedTo, after.AssignedTo)
}

func scheduleChanged(before, after models.LifecycleState) bool {
	return before.Bucket != after.Bucket || !sameTime(before.DueAt, after.DueAt)
}

func rejectedTransition(before, after models.LifecycleState) bool {
	return before.Status != models.LeadStatusRejected && after.Status == models.LeadStatusRejected
}

func sameUint(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
