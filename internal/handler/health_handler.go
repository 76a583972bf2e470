package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/edulens/edulens-api/internal/config"
	"github.com/edulens/edulens-api/internal/database"
	"github.com/edulens/edulens-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
}

// ReadinessResponse reports per-dependency probe results.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}

// ReadinessCheck probes the database and, when configured, redis. Either
// dependency failing turns the response into a 503 so load balancers stop
// routing here.
func ReadinessCheck(db *gorm.DB, redisClient *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		checks := map[string]string{}
		ready := true

		if db != nil {
			if err := database.PingPostgres(c.Context(), db); err != nil {
				checks["database"] = err.Error()
				ready = false
			} else {
				checks["database"] = "ok"
			}
		}

		if redisClient != nil {
			if err := database.PingRedis(c.Context(), redisClient); err != nil {
				checks["redis"] = err.Error()
				ready = false
			} else {
				checks["redis"] = "ok"
			}
		}

		payload := ReadinessResponse{Status: "ready", Checks: checks}
		if !ready {
			payload.Status = "degraded"
			return utils.SendErrorWithData(c, fiber.StatusServiceUnavailable, "service not ready", payload)
		}

		return utils.SendSuccess(c, "service ready", payload)
	}
}
