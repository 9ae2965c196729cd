package handler_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crm-activity-api/internal/handler"
	"github.com/noah-isme/crm-activity-api/internal/middleware"
	"github.com/noah-isme/crm-activity-api/internal/models"
	"github.com/noah-isme/crm-activity-api/internal/service"
	"github.com/noah-isme/crm-activity-api/internal/utils"
)

type stubActivityStream struct {
	mu   sync.Mutex
	last service.StreamOptions
}

func (s *stubActivityStream) Publish(context.Context, models.Activity) error { return nil }

func (s *stubActivityStream) ServeConnection(conn *fiberws.Conn, opts service.StreamOptions) {
	s.mu.Lock()
	s.last = opts
	s.mu.Unlock()
	_ = conn.WriteMessage(fiberws.TextMessage, []byte(`{"type":"welcome"}`))
	_ = conn.Close()
}

func (s *stubActivityStream) Start(context.Context) error { return nil }
func (s *stubActivityStream) Connections() int             { return 0 }
func (s *stubActivityStream) NodeID() string               { return "stub" }

func (s *stubActivityStream) options() service.StreamOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func newStreamApp(stream service.ActivityStream, userID uint) *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	group := app.Group("/api/v1/activities", func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals("user_id", userID)
			c.Locals("user_role", "user")
		}
		return c.Next()
	})
	handler.NewActivityStreamHandler(stream, zerolog.Nop()).Register(group)
	return app
}

func startFiberServer(t *testing.T, app *fiber.App) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	t.Cleanup(func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	})

	return "http://" + listener.Addr().String()
}

func websocketUpgradeRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	return req
}

func TestActivityStreamRequiresUpgrade(t *testing.T) {
	app := newStreamApp(&stubActivityStream{}, 1)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/activities/stream", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestActivityStreamRejectsUnknownType(t *testing.T) {
	app := newStreamApp(&stubActivityStream{}, 1)

	resp, err := app.Test(websocketUpgradeRequest("/api/v1/activities/stream?type=invoices"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body utils.APIResponse
	decodeResponse(t, resp, &body)
	require.False(t, body.Success)
	require.Equal(t, "unknown subject type", body.Message)
}

func TestActivityStreamPassesViewerAndType(t *testing.T) {
	stream := &stubActivityStream{}
	baseURL := startFiberServer(t, newStreamApp(stream, 7))

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v1/activities/stream?type=leads"
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(url, http.Header{"X-Correlation-ID": {"stream-1"}})
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	_, message, err := conn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"welcome"}`, string(message))

	opts := stream.options()
	require.Equal(t, uint(7), opts.Viewer.ID)
	require.Equal(t, "user", opts.Viewer.Role)
	require.Equal(t, "stream-1", opts.Viewer.CorrelationID)
	require.Equal(t, models.SubjectLead, opts.SubjectType)
	require.NotNil(t, opts.Context)
}

func TestActivityStreamClosesAnonymousConnections(t *testing.T) {
	stream := &stubActivityStream{}
	baseURL := startFiberServer(t, newStreamApp(stream, 0))

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v1/activities/stream"
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	require.Zero(t, stream.options().Viewer.ID)
}
