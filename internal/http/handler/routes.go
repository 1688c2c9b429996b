package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/rewrite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"intake/internal/http/middleware"
	"intake/internal/ratelimit"
	"intake/internal/service"
)

const contactPrefix = "/api/contact"

// Deps groups what RegisterRoutes needs. Health, Gatherer and Swagger may be nil.
type Deps struct {
	Submissions     service.SubmissionService
	Admin           service.AdminService
	Limiter         ratelimit.Limiter
	Health          Pinger
	Metrics         *Metrics
	Gatherer        prometheus.Gatherer
	Swagger         fiber.Handler
	AdminToken      string
	CanonicalHost   string
	StaticDir       string
	MaxRequestBytes int64
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Order matters: host redirect, API, operational endpoints, then rewrites and static files.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Use(middleware.CanonicalHost(d.CanonicalHost))

	api := app.Group(contactPrefix, middleware.CORS())
	api.Post("", RateLimit(d.Limiter, d.Metrics), SubmitContact(d.Submissions, d.MaxRequestBytes, d.Metrics))
	api.All("", MethodNotAllowed())

	gate := RequireAdmin(d.AdminToken)
	api.Get("/list", gate, ListContacts(d.Admin))
	api.Get("/get", gate, GetContact(d.Admin))
	api.Get("/file", gate, ContactFile(d.Admin))
	api.All("/*", NotFound())
	// Group middleware matches by raw prefix, so /api/contactfoo also lands here.
	app.All(contactPrefix+"*", NotFound())

	app.Get("/health", HealthCheck(d.Health))
	app.Get("/healthz", LivenessProbe())
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	if d.Swagger != nil {
		app.Get("/swagger/*", d.Swagger)
	}

	app.Use(rewrite.New(rewrite.Config{
		Rules: map[string]string{
			`^/(evaluate|condition)/?`: "/condition.html",
		},
	}))
	if d.StaticDir != "" {
		app.Static("/", d.StaticDir)
	}
}
