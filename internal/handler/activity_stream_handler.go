package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/crm-activity-api/internal/middleware"
	"github.com/noah-isme/crm-activity-api/internal/service"
	"github.com/noah-isme/crm-activity-api/internal/utils"
)

// ActivityStreamHandler upgrades requests onto the live activity stream.
type ActivityStreamHandler struct {
	stream service.ActivityStream
	logger zerolog.Logger
}

// NewActivityStreamHandler constructs the handler.
func NewActivityStreamHandler(stream service.ActivityStream, logger zerolog.Logger) *ActivityStreamHandler {
	return &ActivityStreamHandler{
		stream: stream,
		logger: logger.With().Str("component", "activity_stream_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *ActivityStreamHandler) Register(router fiber.Router) {
	router.Use("/stream", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return utils.Fail(c, fiber.StatusUpgradeRequired, "websocket upgrade required", nil)
		}

		subjectType := strings.ToLower(strings.TrimSpace(c.Query("type")))
		if subjectType != "" {
			resolved, ok := subjectPaths[subjectType]
			if !ok {
				return utils.Fail(c, fiber.StatusBadRequest, "unknown subject type", map[string]string{"type": subjectType})
			}
			subjectType = resolved
		}

		ctx := c.UserContext()
		if ctx == nil {
			ctx = context.Background()
		}
		c.Locals("request_ctx", middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c)))
		c.Locals("stream_subject_type", subjectType)
		c.Locals("stream_actor", actorFromContext(c))
		return c.Next()
	})

	router.Get("/stream", websocket.New(h.handleConnection))
}

func (h *ActivityStreamHandler) handleConnection(conn *websocket.Conn) {
	actor, _ := conn.Locals("stream_actor").(service.Actor)
	if actor.ID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	subjectType, _ := conn.Locals("stream_subject_type").(string)
	ctx, _ := conn.Locals("request_ctx").(context.Context)

	logger := h.logger.With().Uint("user_id", actor.ID).Str("correlation_id", actor.CorrelationID).Logger()
	logger.Info().Msg("activity stream connected")
	h.stream.ServeConnection(conn, service.StreamOptions{
		Viewer:      actor,
		SubjectType: subjectType,
		Context:     ctx,
	})
	logger.Info().Msg("activity stream disconnected")
}
