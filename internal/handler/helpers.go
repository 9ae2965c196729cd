package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/crm-activity-api/internal/middleware"
	"github.com/noah-isme/crm-activity-api/internal/models"
	"github.com/noah-isme/crm-activity-api/internal/repository"
	"github.com/noah-isme/crm-activity-api/internal/service"
	"github.com/noah-isme/crm-activity-api/internal/utils"
)

// subjectPaths maps URL collection segments onto subject type tags.
var subjectPaths = map[string]string{
	"accounts":      models.SubjectAccount,
	"campaigns":     models.SubjectCampaign,
	"contacts":      models.SubjectContact,
	"leads":         models.SubjectLead,
	"opportunities": models.SubjectOpportunity,
	"tasks":         models.SubjectTask,
}

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseQueryUint(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid id")
	}
	id := uint(parsed)
	return &id, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func actorFromContext(c *fiber.Ctx) service.Actor {
	return service.Actor{
		ID:            userIDFromContext(c),
		Role:          userRoleFromContext(c),
		CorrelationID: middleware.GetCorrelationID(c),
	}
}

// subjectRefFromParams reads the :subject collection and :id path parameters.
func subjectRefFromParams(c *fiber.Ctx) (models.SubjectRef, bool) {
	subjectType, ok := subjectTypeFromParams(c)
	if !ok {
		return models.SubjectRef{}, false
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return models.SubjectRef{}, false
	}
	return models.SubjectRef{Type: subjectType, ID: uint(id)}, true
}

func subjectTypeFromParams(c *fiber.Ctx) (string, bool) {
	subjectType, ok := subjectPaths[strings.ToLower(c.Params("subject"))]
	return subjectType, ok
}

// normalizeSubjectType lowercases a query value and maps collection names
// ("accounts") onto their subject tags. Unknown values pass through for the
// service to reject.
func normalizeSubjectType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if resolved, ok := subjectPaths[value]; ok {
		return resolved
	}
	return value
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Field()] = fieldErr.Tag()
	}
	return details
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *fiber.Ctx, logger *zerolog.Logger, err error, fallback string) error {
	switch {
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	case errors.Is(err, service.ErrSubjectNotFound), errors.Is(err, repository.ErrUnknownSubjectType):
		return utils.Fail(c, fiber.StatusNotFound, "subject not found", nil)
	case errors.Is(err, service.ErrSubjectForbidden):
		return utils.Fail(c, fiber.StatusForbidden, "subject not accessible", nil)
	case errors.Is(err, service.ErrNotShareable):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, "subject type cannot be shared", nil)
	case errors.Is(err, service.ErrInvalidFilter), errors.Is(err, service.ErrInvalidAction), errors.Is(err, service.ErrEmptyComment):
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	default:
		logger.Error().Err(err).Msg(fallback)
		return utils.Fail(c, fiber.StatusInternalServerError, fallback, nil)
	}
}
