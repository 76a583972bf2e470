package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/service"
	"github.com/edulens/edulens-api/internal/utils"
)

// EventHandler streams grading events to the authenticated user over SSE.
type EventHandler struct {
	service   service.EventService
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewEventHandler builds an event handler instance.
func NewEventHandler(service service.EventService, keepAlive time.Duration, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		service:   service,
		logger:    logger.With().Str("component", "event_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register attaches the routes to the provided router group.
func (h *EventHandler) Register(router fiber.Router) {
	router.Get("", h.stream)
}

func (h *EventHandler) stream(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	events, cleanup := h.service.Subscribe(userID)

	keepAliveInterval := h.keepAlive
	if keepAliveInterval <= 0 {
		keepAliveInterval = 30 * time.Second
	}

	logger := h.logger.With().Str("user_id", userID).Logger()
	logger.Debug().Msg("grading event stream opened")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
			logger.Debug().Msg("grading event stream closed")
		}()

		ticker := time.NewTicker(keepAliveInterval / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeGradingEvent(w, event); err != nil {
					logger.Debug().Err(err).Msg("failed to write grading event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					logger.Debug().Err(err).Msg("failed to write keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func writeGradingEvent(w *bufio.Writer, event dto.GradingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
