package handler

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/middleware"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/service"
	"github.com/edulens/edulens-api/internal/utils"
	"github.com/edulens/edulens-api/pkg/ai"
)

// RubricHandler manages rubric set endpoints.
type RubricHandler struct {
	rubrics        service.RubricService
	submissions    service.SubmissionService
	validator      *validator.Validate
	logger         zerolog.Logger
	uploadMaxBytes int64
}

// NewRubricHandler builds a rubric handler instance.
func NewRubricHandler(rubrics service.RubricService, submissions service.SubmissionService, validator *validator.Validate, uploadMaxBytes int, logger zerolog.Logger) *RubricHandler {
	return &RubricHandler{
		rubrics:        rubrics,
		submissions:    submissions,
		validator:      validator,
		logger:         logger.With().Str("component", "rubric_handler").Logger(),
		uploadMaxBytes: int64(uploadMaxBytes),
	}
}

// Register attaches the routes to the provided router group. Uploading and
// viewing a set's submissions are teacher operations; reads are open to any
// authenticated user.
func (h *RubricHandler) Register(router fiber.Router) {
	router.Post("", middleware.RequireRole(models.RoleTeacher), h.create)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Get("/:id/submissions", middleware.RequireRole(models.RoleTeacher), h.listSubmissions)
}

func (h *RubricHandler) create(c *fiber.Ctx) error {
	var payload dto.RubricUploadRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid form payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	var deadline *time.Time
	if payload.Deadline != "" {
		parsed, err := time.Parse(time.RFC3339, payload.Deadline)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "deadline must be RFC3339")
		}
		utc := parsed.UTC()
		deadline = &utc
	}

	path, filename, cleanup, err := saveUpload(c, "file", h.uploadMaxBytes, "application/pdf", "text/plain")
	if err != nil {
		return sendUploadError(c, err)
	}
	defer cleanup()

	outcome, err := h.rubrics.CreateFromDocument(c.Context(), service.CreateRubricInput{
		Path:        path,
		Filename:    filename,
		Title:       payload.Title,
		TeacherID:   userIDFromContext(c),
		Deadline:    deadline,
		MaxAttempts: payload.MaxAttempts,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Str("rubric_set_id", outcome.Set.RubricSetID).
		Str("operation", outcome.Operation).
		Msg("rubric uploaded")

	return utils.SendCreated(c, "rubric set "+outcome.Operation, dto.RubricUploadResponse{
		Operation:         outcome.Operation,
		RubricSetResponse: outcome.Set,
	})
}

func (h *RubricHandler) list(c *fiber.Ctx) error {
	if c.QueryBool("mine") && userRoleFromContext(c) == models.RoleTeacher {
		sets, err := h.rubrics.ListByTeacher(c.Context(), userIDFromContext(c))
		if err != nil {
			return h.handleError(c, err)
		}
		return utils.SendSuccess(c, "rubric sets retrieved", sets)
	}

	sets, err := h.rubrics.List(c.Context())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "rubric sets retrieved", sets)
}

func (h *RubricHandler) get(c *fiber.Ctx) error {
	set, err := h.rubrics.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "rubric set retrieved", set)
}

func (h *RubricHandler) listSubmissions(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.rubrics.Get(c.Context(), id); err != nil {
		return h.handleError(c, err)
	}

	submissions, err := h.submissions.ListByRubricSet(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *RubricHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case errors.Is(err, service.ErrInvalidInput):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRubricSetNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "rubric set not found")
	case errors.Is(err, ai.ErrExtractionFailed):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ai.ErrMalformedResponse):
		return utils.SendError(c, fiber.StatusBadGateway, "model returned an unusable response")
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
