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
	"github.com/edulens/edulens-api/internal/repository"
	"github.com/edulens/edulens-api/internal/service"
	"github.com/edulens/edulens-api/internal/utils"
	"github.com/edulens/edulens-api/pkg/ai"
)

// SubmissionHandler manages report submission endpoints.
type SubmissionHandler struct {
	service        service.SubmissionService
	validator      *validator.Validate
	logger         zerolog.Logger
	uploadMaxBytes int64
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, validator *validator.Validate, uploadMaxBytes int, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:        service,
		validator:      validator,
		logger:         logger.With().Str("component", "submission_handler").Logger(),
		uploadMaxBytes: int64(uploadMaxBytes),
	}
}

// Register attaches the routes to the provided router group. Both routes are
// student operations; the submitting student always comes from the token.
// Submissions are rate limited per student since every one costs a model call.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("", middleware.RateLimit("grading", 5, time.Minute), middleware.RequireRole(models.RoleStudent), h.create)
	router.Get("/me", middleware.RequireRole(models.RoleStudent), h.listMine)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid form payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	path, filename, cleanup, err := saveUpload(c, "file", h.uploadMaxBytes, "application/pdf", "text/plain")
	if err != nil {
		return sendUploadError(c, err)
	}
	defer cleanup()

	outcome, err := h.service.SubmitForGrading(c.Context(), service.SubmitInput{
		StudentID:   userIDFromContext(c),
		RubricSetID: payload.RubricSetID,
		ReportPath:  path,
		Filename:    filename,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Str("rubric_set_id", payload.RubricSetID).
		Int("attempt", outcome.AttemptNumber).
		Float64("total_score", outcome.Result.TotalScore).
		Msg("report graded")

	return utils.SendCreated(c, "report graded", dto.GradeOutcomeResponse{
		RubricSetID:       payload.RubricSetID,
		AttemptNumber:     outcome.AttemptNumber,
		AttemptsRemaining: outcome.AttemptsRemaining,
		Operation:         outcome.Operation,
		Result:            outcome.Result,
	})
}

func (h *SubmissionHandler) listMine(c *fiber.Ctx) error {
	submissions, err := h.service.ListByStudent(c.Context(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case errors.Is(err, service.ErrInvalidInput):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRubricSetNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "rubric set not found")
	case errors.Is(err, service.ErrDeadlineExceeded):
		return utils.SendError(c, fiber.StatusForbidden, "submission deadline has passed")
	case errors.Is(err, service.ErrAttemptsExhausted):
		return utils.SendError(c, fiber.StatusForbidden, "maximum attempts exhausted")
	case errors.Is(err, repository.ErrAttemptConflict):
		return utils.SendError(c, fiber.StatusConflict, "a concurrent submission won this attempt, please retry")
	case errors.Is(err, ai.ErrExtractionFailed):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ai.ErrMalformedResponse):
		return utils.SendError(c, fiber.StatusBadGateway, "model returned an unusable response")
	case errors.Is(err, service.ErrGradingFailed):
		return utils.SendError(c, fiber.StatusBadGateway, "grading failed, attempt not consumed")
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
