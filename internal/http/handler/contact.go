package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"intake/internal/ratelimit"
	"intake/internal/service"
)

const anonymousIdentity = "anonymous"

type submitResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// clientIP returns the client address as reported by the edge proxy.
// Empty when neither CF-Connecting-IP nor X-Forwarded-For is present.
// The result is copied out of the request buffer since limiters keep it as a map key.
func clientIP(c *fiber.Ctx) string {
	if ip := strings.TrimSpace(c.Get("CF-Connecting-IP")); ip != "" {
		return utils.CopyString(ip)
	}
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return utils.CopyString(strings.TrimSpace(first))
	}
	return ""
}

// RateLimit rejects requests over the per-client budget with 429 before any
// downstream work. Clients without an identifiable address share one bucket.
// A limiter backend error lets the request through.
func RateLimit(l ratelimit.Limiter, m *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := clientIP(c)
		if identity == "" {
			identity = anonymousIdentity
		}

		ok, err := l.Allow(c.UserContext(), identity)
		if err != nil {
			slog.ErrorContext(c.UserContext(), "rate limiter unavailable, allowing request", "error", err)
			return c.Next()
		}
		if !ok {
			m.limited()
			return writeError(c, fiber.StatusTooManyRequests, "Too many requests. Please slow down.")
		}
		return c.Next()
	}
}

// SubmitContact accepts the public multipart contact form.
//
// @Summary  Submit the public contact form
// @Tags     contact
// @Accept   multipart/form-data
// @Produce  json
// @Param    cf-turnstile-response formData string true  "Turnstile token"
// @Param    name                  formData string true  "Name"
// @Param    email                 formData string true  "Email"
// @Param    details               formData string true  "Project details"
// @Param    lang                  formData string false "UI language"
// @Param    photos                formData file   false "Up to 5 images"
// @Success  200 {object} submitResponse
// @Failure  400 {object} errorPayload
// @Failure  403 {object} verificationPayload
// @Failure  413 {object} errorPayload
// @Failure  429 {object} errorPayload
// @Failure  500 {object} errorPayload
// @Router   /api/contact [post]
func SubmitContact(svc service.SubmissionService, maxRequestBytes int64, m *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !strings.Contains(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
			m.submission(outcomeBadRequest)
			return writeError(c, fiber.StatusBadRequest, "Content-Type must be multipart/form-data")
		}
		if cl := c.Request().Header.ContentLength(); maxRequestBytes > 0 && int64(cl) > maxRequestBytes {
			m.submission(outcomeBadRequest)
			return writeError(c, fiber.StatusRequestEntityTooLarge, "Payload too large")
		}

		form, err := c.MultipartForm()
		if err != nil {
			m.submission(outcomeBadRequest)
			return writeError(c, fiber.StatusBadRequest, "Invalid form data")
		}

		sub := service.Submission{
			Token:     formValue(form, "cf-turnstile-response"),
			IP:        clientIP(c),
			UserAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
			Lang:      formValue(form, "lang"),
			Name:      formValue(form, "name"),
			Email:     formValue(form, "email"),
			Details:   formValue(form, "details"),
		}
		for _, fh := range form.File["photos"] {
			sub.Photos = append(sub.Photos, photoFromHeader(fh))
		}

		span := trace.SpanFromContext(c.UserContext())
		span.SetAttributes(attribute.Int("contact.photos", len(sub.Photos)))

		id, err := svc.Submit(c.UserContext(), sub)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return writeSubmitError(c, err, m)
		}

		span.SetAttributes(attribute.String("contact.id", id))
		m.submission(outcomeAccepted)
		return c.JSON(submitResponse{OK: true, ID: id})
	}
}

// MethodNotAllowed answers any method the contact endpoint does not accept.
func MethodNotAllowed() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return writeError(c, fiber.StatusMethodNotAllowed, "Method not allowed")
	}
}

// NotFound answers unknown paths under the contact API.
func NotFound() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return writeError(c, fiber.StatusNotFound, "Not found")
	}
}

func writeSubmitError(c *fiber.Ctx, err error, m *Metrics) error {
	var verr *service.VerificationError
	switch {
	case errors.Is(err, service.ErrTokenMissing):
		m.submission(outcomeBadRequest)
		return writeError(c, fiber.StatusBadRequest, "Missing Turnstile token")
	case errors.As(err, &verr):
		m.submission(outcomeVerification)
		return writeVerificationError(c, verr.Codes)
	case errors.Is(err, service.ErrMissingFields):
		m.submission(outcomeValidation)
		return writeError(c, fiber.StatusBadRequest, "Missing required fields")
	case errors.Is(err, service.ErrInvalidEmail):
		m.submission(outcomeValidation)
		return writeError(c, fiber.StatusBadRequest, "Invalid email")
	case errors.Is(err, service.ErrPhotosTooBig):
		m.submission(outcomeValidation)
		return writeError(c, fiber.StatusRequestEntityTooLarge, "Photos too large")
	case errors.Is(err, service.ErrNotAnImage):
		m.submission(outcomeValidation)
		return writeError(c, fiber.StatusBadRequest, "Invalid image")
	case errors.Is(err, service.ErrStorage):
		m.submission(outcomeStorageError)
		return writeError(c, fiber.StatusInternalServerError, "Storage failure")
	default:
		m.submission(outcomeStorageError)
		slog.ErrorContext(c.UserContext(), "contact submission failed", "error", err, "request_id", requestIDFromCtx(c))
		return writeError(c, fiber.StatusInternalServerError, "Internal server error")
	}
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func photoFromHeader(fh *multipart.FileHeader) service.Photo {
	return service.Photo{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}
