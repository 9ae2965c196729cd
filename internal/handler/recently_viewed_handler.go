package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/crm-activity-api/internal/service"
	"github.com/noah-isme/crm-activity-api/internal/utils"
)

// RecentlyViewedHandler serves the per-user recency list.
type RecentlyViewedHandler struct {
	tracker service.RecentlyViewedTracker
	logger  zerolog.Logger
}

// NewRecentlyViewedHandler constructs the handler.
func NewRecentlyViewedHandler(tracker service.RecentlyViewedTracker, logger zerolog.Logger) *RecentlyViewedHandler {
	return &RecentlyViewedHandler{
		tracker: tracker,
		logger:  logger.With().Str("component", "recently_viewed_handler").Logger(),
	}
}

// Register wires the recency route.
func (h *RecentlyViewedHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *RecentlyViewedHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	subjectType := normalizeSubjectType(c.Query("type"))
	result, err := h.tracker.RecentlyViewedFor(c.UserContext(), userIDFromContext(c), subjectType, limit)
	if err != nil {
		return respondError(c, requestLogger(h.logger, c), err, "failed to fetch recently viewed items")
	}

	if result.CacheHit {
		c.Set("X-Cache-Hit", "true")
	} else {
		c.Set("X-Cache-Hit", "false")
	}

	return utils.SendSuccess(c, "recently viewed items retrieved", result)
}
