package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/edulens/edulens-api/internal/middleware"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/service"
	"github.com/edulens/edulens-api/internal/utils"
)

// DashboardHandler serves the student dashboard aggregate.
type DashboardHandler struct {
	service service.DashboardService
	logger  zerolog.Logger
}

// NewDashboardHandler builds a dashboard handler instance.
func NewDashboardHandler(service service.DashboardService, logger zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		logger:  logger.With().Str("component", "dashboard_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *DashboardHandler) Register(router fiber.Router) {
	router.Get("", middleware.RequireRole(models.RoleStudent), h.dashboard)
}

func (h *DashboardHandler) dashboard(c *fiber.Ctx) error {
	dashboard, err := h.service.GetDashboard(c.Context(), userIDFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "dashboard retrieved", dashboard)
}
