package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CanonicalHost permanently redirects requests for the bare domain to the www host,
// keeping path and query. canonical is e.g. "www.example.com"; empty disables the check.
func CanonicalHost(canonical string) fiber.Handler {
	bare := strings.TrimPrefix(canonical, "www.")
	if canonical == "" || bare == canonical {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return func(c *fiber.Ctx) error {
		host := c.Hostname()
		if h, _, ok := strings.Cut(host, ":"); ok {
			host = h
		}
		if strings.EqualFold(host, bare) {
			return c.Redirect("https://"+canonical+c.OriginalURL(), fiber.StatusPermanentRedirect)
		}
		return c.Next()
	}
}
