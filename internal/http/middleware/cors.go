package middleware

import (
	"github.com/gofiber/fiber/v2"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type"
	corsMaxAge       = "86400"
)

// SetCORSHeaders writes permissive CORS headers that reflect the request Origin.
// Exported so the global error handler can decorate framework errors the same way.
func SetCORSHeaders(c *fiber.Ctx) {
	origin := c.Get(fiber.HeaderOrigin)
	if origin == "" {
		origin = "*"
	}
	c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
	c.Set(fiber.HeaderVary, fiber.HeaderOrigin)
	c.Set(fiber.HeaderAccessControlAllowMethods, corsAllowMethods)
	c.Set(fiber.HeaderAccessControlAllowHeaders, corsAllowHeaders)
	c.Set(fiber.HeaderAccessControlMaxAge, corsMaxAge)
}

// CORS decorates every response under its mount point and answers
// OPTIONS preflight with an empty 204 without running later handlers.
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		SetCORSHeaders(c)
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
