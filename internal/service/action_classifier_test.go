package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crm-activity-api/internal/models"
)

func TestClassifyLifecycleKinds(t *testing.T) {
	classifier := NewActionClassifier()
	account := models.Account{ID: 1, Name: "Acme"}

	cases := map[EventKind]models.ActivityAction{
		EventCreate:  models.ActionCreated,
		EventDestroy: models.ActionDeleted,
		EventComment: models.ActionCommented,
		EventView:    models.ActionViewed,
		EventUpdate:  models.ActionUpdated,
	}
	for kind, expected := range cases {
		result, err := classifier.Classify(LifecycleEvent{Kind: kind, Subject: account})
		require.NoError(t, err, kind)
		require.Equal(t, expected, result.Action, kind)
		require.Equal(t, "Acme", result.Info)
	}
}

func TestClassifyUpdateRulesFirstMatchWins(t *testing.T) {
	classifier := NewActionClassifier()
	now := time.Now()
	assignee := uint(7)

	before := models.Task{ID: 1, Name: "Call", Bucket: models.BucketDueToday}
	after := before
	after.CompletedAt = &now
	after.AssignedTo = &assignee
	after.Bucket = models.BucketDueLater

	state := before.State()
	result, err := classifier.Classify(LifecycleEvent{Kind: EventUpdate, Subject: after, Before: &state})
	require.NoError(t, err)
	require.Equal(t, models.ActionCompleted, result.Action)

	after.CompletedAt = nil
	result, err = classifier.Classify(LifecycleEvent{Kind: EventUpdate, Subject: after, Before: &state})
	require.NoError(t, err)
	require.Equal(t, models.ActionReassigned, result.Action)

	after.AssignedTo = nil
	result, err = classifier.Classify(LifecycleEvent{Kind: EventUpdate, Subject: after, Before: &state})
	require.NoError(t, err)
	require.Equal(t, models.ActionRescheduled, result.Action)

	completedBefore := before
	completedBefore.CompletedAt = &now
	completedState := completedBefore.State()
	result, err = classifier.Classify(LifecycleEvent{Kind: EventUpdate, Subject: completedBefore, Before: &completedState})
	require.NoError(t, err)
	require.Equal(t, models.ActionUpdated, result.Action)
}

func TestClassifyLeadRejection(t *testing.T) {
	classifier := NewActionClassifier()
	lead := models.Lead{ID: 3, FirstName: "Jane", LastName: "Doe", Status: models.LeadStatusContacted}
	state := lead.State()

	rejected := lead
	rejected.Status = models.LeadStatusRejected
	result, err := classifier.Classify(LifecycleEvent{Kind: EventUpdate, Subject: rejected, Before: &state})
	require.NoError(t, err)
	require.Equal(t, models.ActionRejected, result.Action)
	require.Equal(t, "Jane Doe", result.Info)

	again := rejected.State()
	result, err = classifier.Classify(LifecycleEvent{Kind: EventUpdate, Subject: rejected, Before: &again})
	require.NoError(t, err)
	require.Equal(t, models.ActionUpdated, result.Action)
}

func TestClassifyUpdateWithoutBeforeIsGeneric(t *testing.T) {
	classifier := NewActionClassifier()
	now := time.Now()
	result, err := classifier.Classify(LifecycleEvent{Kind: EventUpdate, Subject: models.Task{ID: 1, Name: "x", CompletedAt: &now}})
	require.NoError(t, err)
	require.Equal(t, models.ActionUpdated, result.Action)
}

func TestClassifyCustomRules(t *testing.T) {
	classifier := NewActionClassifier(ActionRule{
		Action: models.ActionRejected,
		Match: func(before, after models.LifecycleState) bool {
			return before.Status == "planned" && after.Status == "called_off"
		},
	})

	before := models.Campaign{ID: 1, Name: "Spring", Status: "planned"}
	after := before
	after.Status = "called_off"
	state := before.State()

	result, err := classifier.Classify(LifecycleEvent{Kind: EventUpdate, Subject: after, Before: &state})
	require.NoError(t, err)
	require.Equal(t, models.ActionRejected, result.Action)
}

func TestClassifyUnknownKind(t *testing.T) {
	result, err := NewActionClassifier().Classify(LifecycleEvent{Kind: "archive", Subject: models.Account{ID: 1, Name: "Acme"}})
	require.ErrorIs(t, err, ErrInvalidAction)
	require.Equal(t, models.ActionCustom, result.Action)
	require.Equal(t, "Acme", result.Info)
}

func TestClassifyWithoutSubject(t *testing.T) {
	_, err := NewActionClassifier().Classify(LifecycleEvent{Kind: EventCreate})
	require.ErrorIs(t, err, ErrSubjectNotFound)
}

func TestLabelStripsMarkupAndTruncates(t *testing.T) {
	classifier := NewActionClassifier()

	require.Equal(t, "Tom & Jerry", classifier.Label(models.Account{Name: `<script>alert(1)</script><i>Tom &amp; Jerry</i>`}))
	require.Equal(t, "Jane Doe", classifier.Label(models.Contact{FirstName: "  Jane ", LastName: "Doe  "}))

	long := classifier.Label(models.Account{Name: strings.Repeat("é", 300)})
	require.Equal(t, maxInfoLength, len([]rune(long)))
}
