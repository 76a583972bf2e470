package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/edulens/edulens-api/internal/middleware"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/service"
	"github.com/edulens/edulens-api/internal/utils"
	"github.com/edulens/edulens-api/pkg/ai"
)

// BluebookHandler manages answer-booklet scan endpoints.
type BluebookHandler struct {
	service        service.BluebookService
	logger         zerolog.Logger
	uploadMaxBytes int64
}

// NewBluebookHandler builds a bluebook handler instance.
func NewBluebookHandler(service service.BluebookService, uploadMaxBytes int, logger zerolog.Logger) *BluebookHandler {
	return &BluebookHandler{
		service:        service,
		logger:         logger.With().Str("component", "bluebook_handler").Logger(),
		uploadMaxBytes: int64(uploadMaxBytes),
	}
}

// Register attaches the routes to the provided router group. Scanning
// booklets is teacher-only.
func (h *BluebookHandler) Register(router fiber.Router) {
	router.Post("", middleware.RequireRole(models.RoleTeacher), h.process)
	router.Get("", middleware.RequireRole(models.RoleTeacher), h.list)
}

func (h *BluebookHandler) process(c *fiber.Ctx) error {
	path, _, cleanup, err := saveUpload(c, "file", h.uploadMaxBytes, "image/png", "image/jpeg")
	if err != nil {
		return sendUploadError(c, err)
	}
	defer cleanup()

	record, err := h.service.Process(c.Context(), service.BluebookInput{
		ImagePath: path,
		TeacherID: userIDFromContext(c),
	})
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Str("usn", record.USN).
		Bool("persisted", record.Persisted).
		Msg("bluebook processed")

	return utils.SendCreated(c, "bluebook processed", record)
}

func (h *BluebookHandler) list(c *fiber.Ctx) error {
	records, err := h.service.List(c.Context(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "bluebook records retrieved", records)
}

func (h *BluebookHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNoBluebookDetected):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "no bluebook fields detected in the image")
	case errors.Is(err, service.ErrDetectionFailed):
		return utils.SendError(c, fiber.StatusBadGateway, "field detection service failed")
	case errors.Is(err, ai.ErrExtractionFailed):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ai.ErrMalformedResponse):
		return utils.SendError(c, fiber.StatusBadGateway, "model returned an unusable response")
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
