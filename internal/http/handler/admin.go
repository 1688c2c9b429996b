package handler

import (
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"intake/internal/service"
)

// RequireAdmin checks the ?token= query parameter against the configured secret.
// An empty secret locks the admin endpoints entirely; absence and mismatch look the same.
func RequireAdmin(token string) fiber.Handler {
	want := []byte(token)
	return func(c *fiber.Ctx) error {
		got := []byte(c.Query("token"))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			return writeError(c, fiber.StatusUnauthorized, "Unauthorized")
		}
		return c.Next()
	}
}

// ListContacts returns the most recent submissions, newest first.
//
// @Summary  List recent submissions
// @Tags     admin
// @Produce  json
// @Param    token query string  true  "Admin token"
// @Param    limit query integer false "Max items (default 50, max 100)"
// @Success  200
// @Failure  401 {object} errorPayload
// @Router   /api/contact/list [get]
func ListContacts(svc service.AdminService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", service.DefaultListLimit)
		if limit < 1 {
			limit = 1
		}

		items, err := svc.List(c.UserContext(), limit)
		if err != nil {
			return writeAdminError(c, err)
		}
		return c.JSON(fiber.Map{"ok": true, "items": items})
	}
}

// GetContact returns one submission record by id.
//
// @Summary  Get one submission
// @Tags     admin
// @Produce  json
// @Param    token query string true "Admin token"
// @Param    id    query string true "Submission id"
// @Success  200
// @Failure  400 {object} errorPayload
// @Failure  401 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Router   /api/contact/get [get]
func GetContact(svc service.AdminService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rec, err := svc.Get(c.UserContext(), c.Query("id"))
		if err != nil {
			return writeAdminError(c, err)
		}
		return c.JSON(fiber.Map{"ok": true, "record": rec})
	}
}

// ContactFile streams a stored photo by blob key.
//
// @Summary  Download a stored photo
// @Tags     admin
// @Produce  octet-stream
// @Param    token query string true "Admin token"
// @Param    key   query string true "Blob key from the record's photos"
// @Success  200
// @Failure  401 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Router   /api/contact/file [get]
func ContactFile(svc service.AdminService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc, info, err := svc.File(c.UserContext(), c.Query("key"))
		if err != nil {
			return writeAdminError(c, err)
		}

		ct := info.ContentType
		if ct == "" {
			ct = fiber.MIMEOctetStream
		}
		c.Set(fiber.HeaderContentType, ct)
		c.Set(fiber.HeaderCacheControl, "no-store")

		// fasthttp closes rc once the body has been written.
		if info.Size > 0 {
			return c.Status(fiber.StatusOK).SendStream(rc, int(info.Size))
		}
		return c.Status(fiber.StatusOK).SendStream(rc)
	}
}

func writeAdminError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrIDRequired):
		return writeError(c, fiber.StatusBadRequest, "Missing id")
	case errors.Is(err, service.ErrKeyRequired):
		return writeError(c, fiber.StatusBadRequest, "Missing key")
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrRecordStoreUnavailable), errors.Is(err, service.ErrBlobStoreUnavailable):
		return writeError(c, fiber.StatusInternalServerError, err.Error())
	default:
		slog.ErrorContext(c.UserContext(), "admin request failed", "path", c.Path(), "error", err)
		return writeError(c, fiber.StatusInternalServerError, "Internal server error")
	}
}
