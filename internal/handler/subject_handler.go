package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/crm-activity-api/internal/dto"
	"github.com/noah-isme/crm-activity-api/internal/service"
	"github.com/noah-isme/crm-activity-api/internal/utils"
)

// SubjectHandler exposes CRUD, comments and sharing for every CRM subject type.
type SubjectHandler struct {
	service service.SubjectService
	logger  zerolog.Logger
}

// NewSubjectHandler constructs the handler.
func NewSubjectHandler(service service.SubjectService, logger zerolog.Logger) *SubjectHandler {
	return &SubjectHandler{
		service: service,
		logger:  logger.With().Str("component", "subject_handler").Logger(),
	}
}

// Register attaches the subject routes. The group must be mounted after any
// static sibling routes since :subject matches any segment.
func (h *SubjectHandler) Register(router fiber.Router) {
	router.Post("/:subject", h.create)
	router.Get("/:subject/:id", h.show)
	router.Put("/:subject/:id", h.update)
	router.Delete("/:subject/:id", h.destroy)
	router.Post("/:subject/:id/comments", h.comment)
	router.Put("/:subject/:id/permissions", h.share)
}

func (h *SubjectHandler) create(c *fiber.Ctx) error {
	subjectType, ok := subjectTypeFromParams(c)
	if !ok {
		return utils.SendError(c, fiber.StatusNotFound, "unknown subject type")
	}

	attrs := make(map[string]interface{})
	if err := c.BodyParser(&attrs); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Create(c.UserContext(), actorFromContext(c), subjectType, attrs)
	if err != nil {
		return respondError(c, requestLogger(h.logger, c), err, "failed to create subject")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "subject created", response)
}

func (h *SubjectHandler) show(c *fiber.Ctx) error {
	ref, ok := subjectRefFromParams(c)
	if !ok {
		return utils.SendError(c, fiber.StatusNotFound, "subject not found")
	}

	response, err := h.service.Show(c.UserContext(), actorFromContext(c), ref)
	if err != nil {
		return respondError(c, requestLogger(h.logger, c), err, "failed to load subject")
	}

	return utils.SendSuccess(c, "subject retrieved", response)
}

func (h *SubjectHandler) update(c *fiber.Ctx) error {
	ref, ok := subjectRefFromParams(c)
	if !ok {
		return utils.SendError(c, fiber.StatusNotFound, "subject not found")
	}

	attrs := make(map[string]interface{})
	if err := c.BodyParser(&attrs); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Update(c.UserContext(), actorFromContext(c), ref, attrs)
	if err != nil {
		return respondError(c, requestLogger(h.logger, c), err, "failed to update subject")
	}

	return utils.SendSuccess(c, "subject updated", response)
}

func (h *SubjectHandler) destroy(c *fiber.Ctx) error {
	ref, ok := subjectRefFromParams(c)
	if !ok {
		return utils.SendError(c, fiber.StatusNotFound, "subject not found")
	}

	response, err := h.service.Destroy(c.UserContext(), actorFromContext(c), ref)
	if err != nil {
		return respondError(c, requestLogger(h.logger, c), err, "failed to delete subject")
	}

	return utils.SendSuccess(c, "subject deleted", response)
}

func (h *SubjectHandler) comment(c *fiber.Ctx) error {
	ref, ok := subjectRefFromParams(c)
	if !ok {
		return utils.SendError(c, fiber.StatusNotFound, "subject not found")
	}

	var payload dto.CommentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Comment(c.UserContext(), actorFromContext(c), ref, payload)
	if err != nil {
		return respondError(c, requestLogger(h.logger, c), err, "failed to add comment")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "comment added", response)
}

func (h *SubjectHandler) share(c *fiber.Ctx) error {
	ref, ok := subjectRefFromParams(c)
	if !ok {
		return utils.SendError(c, fiber.StatusNotFound, "subject not found")
	}

	var payload dto.PermissionUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Share(c.UserContext(), actorFromContext(c), ref, payload)
	if err != nil {
		return respondError(c, requestLogger(h.logger, c), err, "failed to update permissions")
	}

	return utils.SendSuccess(c, "permissions updated", response)
}
