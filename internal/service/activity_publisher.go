package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/noah-isme/crm-activity-api/internal/dto"
	"github.com/noah-isme/crm-activity-api/internal/models"
)

// ActivityPublisher fans recorded activities out to other services.
type ActivityPublisher interface {
	Publish(ctx context.Context, activity models.Activity) error
}

type activityEvent struct {
	Source   string               `json:"source"`
	Activity dto.ActivityResponse `json:"activity"`
	SentAt   time.Time            `json:"sent_at"`
}

type natsActivityPublisher struct {
	conn    *nats.Conn
	subject string
	source  string
}

// NewNATSActivityPublisher publishes on "<channel>.activities.recorded".
// It returns a no-op publisher when conn is nil or channelBase is empty.
func NewNATSActivityPublisher(conn *nats.Conn, channelBase, source string) ActivityPublisher {
	subject := activitySubject(channelBase)
	if conn == nil || subject == "" {
		return noopActivityPublisher{}
	}
	return &natsActivityPublisher{conn: conn, subject: subject, source: source}
}

func activitySubject(channelBase string) string {
	base := strings.TrimSpace(channelBase)
	if base == "" {
		return ""
	}
	return strings.ReplaceAll(base, ":", ".") + ".activities.recorded"
}

func (p *natsActivityPublisher) Publish(_ context.Context, activity models.Activity) error {
	payload, err := json.Marshal(activityEvent{
		Source:   p.source,
		Activity: dto.NewActivityResponse(activity),
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, payload)
}

type noopActivityPublisher struct{}

func (noopActivityPublisher) Publish(context.Context, models.Activity) error { return nil }
