package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/edulens/edulens-api/internal/config"
	"github.com/edulens/edulens-api/internal/handler"
	"github.com/edulens/edulens-api/internal/observability"
)

// Dependencies groups router dependencies for registration. Nil handlers are
// skipped so tests can mount only the surface they exercise.
type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	RubricHandler     *handler.RubricHandler
	SubmissionHandler *handler.SubmissionHandler
	DashboardHandler  *handler.DashboardHandler
	BluebookHandler   *handler.BluebookHandler
	EventHandler      *handler.EventHandler
	ReadinessHandler  fiber.Handler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	if deps.ReadinessHandler != nil {
		api.Get("/health/ready", deps.ReadinessHandler)
	}

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.AuthHandler != nil {
		deps.AuthHandler.Register(app.Group("/api/v2/auth"))
		deps.AuthHandler.RegisterProtected(app.Group("/api/v2/auth", jwtMiddleware))
	}

	if deps.RubricHandler != nil {
		rubrics := app.Group("/api/v2/rubrics", jwtMiddleware)
		deps.RubricHandler.Register(rubrics)
	}

	if deps.SubmissionHandler != nil {
		submissions := app.Group("/api/v2/submissions", jwtMiddleware)
		deps.SubmissionHandler.Register(submissions)
	}

	if deps.DashboardHandler != nil {
		dashboard := app.Group("/api/v2/dashboard", jwtMiddleware)
		deps.DashboardHandler.Register(dashboard)
	}

	if deps.BluebookHandler != nil {
		bluebooks := app.Group("/api/v2/bluebooks", jwtMiddleware)
		deps.BluebookHandler.Register(bluebooks)
	}

	if deps.EventHandler != nil {
		events := app.Group("/api/v2/events", jwtMiddleware)
		deps.EventHandler.Register(events)
	}
}
