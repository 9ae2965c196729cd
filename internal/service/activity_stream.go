package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/crm-activity-api/internal/dto"
	"github.com/noah-isme/crm-activity-api/internal/models"
	"github.com/noah-isme/crm-activity-api/internal/observability"
)

const (
	streamSendBufferSize = 32
	streamPingInterval   = 30 * time.Second
)

// StreamOptions describes one live activity subscription.
type StreamOptions struct {
	Viewer      Actor
	SubjectType string
	Context     context.Context
}

// ActivityStream pushes newly recorded activities to connected viewers. It
// receives local activities through Publish and, once started, activities
// recorded on other nodes through NATS.
type ActivityStream interface {
	ActivityPublisher
	ServeConnection(conn *websocket.Conn, opts StreamOptions)
	Start(ctx context.Context) error
	Connections() int
	NodeID() string
}

type activityStream struct {
	visibility *VisibilityFilter
	nats       *nats.Conn
	subject    string
	nodeID     string
	logger     zerolog.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	conn    *websocket.Conn
	send    chan dto.ActivityResponse
	options StreamOptions
	stream  *activityStream
	closed  chan struct{}
	once    sync.Once
}

// NewActivityStream builds the live stream hub. natsConn may be nil, in which
// case only activities recorded on this node are delivered.
func NewActivityStream(visibility *VisibilityFilter, natsConn *nats.Conn, channelBase, nodeID string, logger zerolog.Logger) ActivityStream {
	return &activityStream{
		visibility: visibility,
		nats:       natsConn,
		subject:    activitySubject(channelBase),
		nodeID:     nodeID,
		logger:     logger.With().Str("component", "activity_stream").Logger(),
		clients:    make(map[*streamClient]struct{}),
	}
}

func (s *activityStream) NodeID() string { return s.nodeID }

func (s *activityStream) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Publish delivers a locally recorded activity to connected viewers.
func (s *activityStream) Publish(ctx context.Context, activity models.Activity) error {
	s.broadcast(ctx, activity)
	return nil
}

// Start subscribes to activities published by other nodes until ctx is done.
func (s *activityStream) Start(ctx context.Context) error {
	if s.nats == nil || s.subject == "" {
		return nil
	}

	sub, err := s.nats.Subscribe(s.subject, func(msg *nats.Msg) {
		var event activityEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.Warn().Err(err).Msg("failed to decode activity event")
			return
		}
		if event.Source == s.nodeID {
			return
		}
		s.broadcast(ctx, event.Activity.Model())
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("failed to unsubscribe activity stream")
		}
	}()
	return nil
}

// ServeConnection blocks until the client disconnects.
func (s *activityStream) ServeConnection(conn *websocket.Conn, opts StreamOptions) {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	opts.SubjectType = strings.ToLower(strings.TrimSpace(opts.SubjectType))

	client := &streamClient{
		conn:    conn,
		send:    make(chan dto.ActivityResponse, streamSendBufferSize),
		options: opts,
		stream:  s,
		closed:  make(chan struct{}),
	}

	s.register(client)
	go client.writer()
	client.reader()
}

func (s *activityStream) broadcast(ctx context.Context, activity models.Activity) {
	s.mu.RLock()
	clients := make([]*streamClient, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	response := dto.NewActivityResponse(activity)
	decisions := make(map[uint]bool)
	for _, client := range clients {
		if client.options.SubjectType != "" && client.options.SubjectType != activity.SubjectType {
			continue
		}

		viewer := client.options.Viewer.ID
		allowed, ok := decisions[viewer]
		if !ok {
			allowed = s.visibleTo(ctx, activity, viewer)
			decisions[viewer] = allowed
		}
		if !allowed {
			continue
		}

		select {
		case client.send <- response:
		default:
			observability.StreamDropped().Inc()
			s.logger.Warn().Uint("user_id", viewer).Msg("dropping activity for slow stream client")
		}
	}
}

func (s *activityStream) visibleTo(ctx context.Context, activity models.Activity, viewerID uint) bool {
	visible, err := s.visibility.VisibleTo(ctx, []models.Activity{activity}, viewerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("subject", activity.Subject().String()).Msg("failed to check stream visibility")
		return false
	}
	return len(visible) == 1
}

func (s *activityStream) register(client *streamClient) {
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()
	observability.StreamConnections().Inc()
	s.logger.Debug().Uint("user_id", client.options.Viewer.ID).Msg("stream client connected")
}

func (s *activityStream) unregister(client *streamClient) {
	s.mu.Lock()
	delete(s.clients, client)
	s.mu.Unlock()
	observability.StreamConnections().Dec()
	s.logger.Debug().Uint("user_id", client.options.Viewer.ID).Msg("stream client disconnected")
}

// reader drains control frames; the stream is send-only.
func (c *streamClient) reader() {
	defer c.close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writer() {
	defer c.close()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case activity := <-c.send:
			if err := c.conn.WriteJSON(activity); err != nil {
				c.stream.logger.Debug().Err(err).Msg("stream write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				return
			}
		case <-c.closed:
			return
		case <-c.options.Context.Done():
			return
		}
	}
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.stream.unregister(c)
		_ = c.conn.Close()
	})
}

// FanoutPublisher hands every activity to each publisher in turn and returns
// the first error.
type FanoutPublisher []ActivityPublisher

func (f FanoutPublisher) Publish(ctx context.Context, activity models.Activity) error {
	var first error
	for _, publisher := range f {
		if publisher == nil {
			continue
		}
		if err := publisher.Publish(ctx, activity); err != nil && first == nil {
			first = err
		}
	}
	return first
}
