package handler

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/crm-activity-api/internal/dto"
	"github.com/noah-isme/crm-activity-api/internal/service"
	"github.com/noah-isme/crm-activity-api/internal/utils"
)

// ActivityHandler exposes the activity feed, its CSV export and the admin purge.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
	now     func() time.Time
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
		now:     time.Now,
	}
}

// Register attaches the feed routes. export may carry extra middleware such as a rate limiter.
func (h *ActivityHandler) Register(router fiber.Router, export ...fiber.Handler) {
	router.Get("", h.list)
	router.Get("/export", append(export, h.export)...)
}

// RegisterAdmin attaches the purge route to an admin-only group.
func (h *ActivityHandler) RegisterAdmin(router fiber.Router) {
	router.Delete("", h.purge)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	req, err := activityListRequestFromQuery(c)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	logger := requestLogger(h.logger, c)
	response, err := h.service.Latest(c.UserContext(), userIDFromContext(c), req)
	if err != nil {
		return respondError(c, logger, err, "failed to list activities")
	}

	return utils.OK(c, response.Items, "activities retrieved", response.Pagination)
}

func (h *ActivityHandler) export(c *fiber.Ctx) error {
	req, err := activityListRequestFromQuery(c)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	logger := requestLogger(h.logger, c)
	// Rejected filters must surface as JSON errors before the CSV body starts.
	if err := h.service.CheckFilter(req); err != nil {
		return respondError(c, logger, err, "failed to export activities")
	}

	filename := fmt.Sprintf("activities-%s.csv", h.now().UTC().Format("20060102-150405"))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(fiber.StatusOK)

	ctx := c.UserContext()
	viewerID := userIDFromContext(c)
	streamLogger := *logger
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		rows, err := service.ExportActivities(ctx, h.service, viewerID, req, w)
		if err != nil {
			streamLogger.Error().Err(err).Int("rows", rows).Msg("activity export aborted")
			return
		}
		if err := w.Flush(); err != nil {
			streamLogger.Warn().Err(err).Msg("failed to flush activity export")
			return
		}
		streamLogger.Info().Int("rows", rows).Msg("activities exported")
	})
	return nil
}

func (h *ActivityHandler) purge(c *fiber.Ctx) error {
	var payload dto.ActivityPurgeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
		}
	}

	logger := requestLogger(h.logger, c)
	response, err := h.service.Purge(c.UserContext(), payload)
	if err != nil {
		return respondError(c, logger, err, "failed to purge activities")
	}

	logger.Info().Uint("admin_id", userIDFromContext(c)).Int64("deleted", response.Deleted).Msg("activities purged by admin")
	return utils.SendSuccess(c, "activities purged", response)
}

func activityListRequestFromQuery(c *fiber.Ctx) (dto.ActivityListRequest, error) {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return dto.ActivityListRequest{}, fmt.Errorf("invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return dto.ActivityListRequest{}, fmt.Errorf("invalid page size")
	}
	userID, err := parseQueryUint(c, "user_id")
	if err != nil {
		return dto.ActivityListRequest{}, fmt.Errorf("invalid user id")
	}

	return dto.ActivityListRequest{
		Page:           page,
		PageSize:       pageSize,
		Asset:          normalizeSubjectType(c.Query("asset")),
		UserID:         userID,
		Duration:       c.Query("duration"),
		Actions:        splitAndTrim(c.Query("actions")),
		ExcludeActions: splitAndTrim(c.Query("exclude_actions")),
	}, nil
}
