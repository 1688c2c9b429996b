package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is implemented by the record store backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck reports readiness. With no record store configured the service is
// still healthy: submissions are accepted and logged.
//
// @Summary  Readiness check
// @Tags     ops
// @Produce  json
// @Success  200
// @Failure  503
// @Router   /health [get]
func HealthCheck(p Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if p == nil {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy", "record_store": "disabled"})
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy", "record_store": "up"})
	}
}

// LivenessProbe always answers 200 while the process serves requests.
//
// @Summary  Liveness check
// @Tags     ops
// @Success  200
// @Router   /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
