package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"intake/internal/http/middleware"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// verificationPayload always carries codes, even when the upstream sent none.
type verificationPayload struct {
	OK        bool     `json:"ok"`
	Error     string   `json:"error"`
	Codes     []string `json:"codes"`
	RequestID string   `json:"request_id,omitempty"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
// message is the human-readable text shown to the client.
func writeError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(errorPayload{
		Error:     message,
		RequestID: requestIDFromCtx(c),
	})
}

func writeVerificationError(c *fiber.Ctx, codes []string) error {
	if codes == nil {
		codes = []string{}
	}
	return c.Status(fiber.StatusForbidden).JSON(verificationPayload{
		Error:     "Turnstile failed",
		Codes:     codes,
		RequestID: requestIDFromCtx(c),
	})
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
// Body-limit rejections happen before any middleware runs, so CORS headers are added
// here for the public endpoint as well.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		if strings.HasPrefix(c.Path(), contactPrefix) {
			middleware.SetCORSHeaders(c)
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "Bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "Not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "Method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "Payload too large")
		default:
			return writeError(c, fiber.StatusInternalServerError, "Internal server error")
		}
	}
}
