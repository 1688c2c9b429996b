package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"intake/docs"
	"intake/internal/config"
	"intake/internal/database"
	handlers "intake/internal/http/handler"
	"intake/internal/http/middleware"
	"intake/internal/otel"
	"intake/internal/ratelimit"
	"intake/internal/repository"
	"intake/internal/repository/postgres"
	"intake/internal/repository/redisstore"
	"intake/internal/service"
	"intake/internal/storage"
	"intake/internal/verifier"
)

// @title Contact Intake API
// @version 1.0
// @BasePath /
func main() {
	slog.SetDefault(slog.New(middleware.NewLogHandler(slog.NewJSONHandler(os.Stdout, nil))))

	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	shutdownTracing, err := otel.Init(ctx, "intake")
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	// Redis is shared by the redis record store and the redis limiter.
	var rdb *redis.Client
	if cfg.Intake.RecordStore == config.RecordStoreRedis || cfg.RateLimit.Backend == config.RateLimitRedis {
		rdb, err = database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	records, closeRecords, err := openRecordStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer closeRecords()

	var objStore storage.Storage
	if cfg.MinIO.Enabled() {
		objStore, err = storage.NewMinIO(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
	} else {
		slog.Warn("MINIO_ENDPOINT not set, photo uploads will be dropped")
	}

	limiter, err := newLimiter(cfg.RateLimit, rdb)
	if err != nil {
		return err
	}

	if cfg.Turnstile.Secret == "" {
		slog.Warn("TURNSTILE_SECRET not set, every submission will fail verification")
	}
	if cfg.Intake.AdminToken == "" {
		slog.Warn("ADMIN_TOKEN not set, admin endpoints are locked")
	}

	submissions := service.NewSubmissionService(verifier.NewTurnstile(cfg.Turnstile), objStore, records, service.SubmissionOptions{
		Limits: service.Limits{
			MaxFiles:      cfg.Intake.MaxFiles,
			MaxFileBytes:  cfg.Intake.MaxFileBytes,
			MaxTotalBytes: cfg.Intake.MaxRequestBytes,
		},
		RecordTTL:         cfg.Intake.RecordTTL,
		UploadConcurrency: cfg.Intake.UploadConcurrency,
	})
	admin := service.NewAdminService(records, objStore, slog.Default())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}
	contactMetrics, err := handlers.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register contact metrics: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(cfg.Intake.MaxRequestBytes),
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())
	app.Use(promMiddleware.Handler())

	deps := handlers.Deps{
		Submissions:     submissions,
		Admin:           admin,
		Limiter:         limiter,
		Metrics:         contactMetrics,
		Gatherer:        reg,
		Swagger:         swaggerHandler,
		AdminToken:      cfg.Intake.AdminToken,
		CanonicalHost:   cfg.Intake.CanonicalHost,
		StaticDir:       cfg.Intake.StaticDir,
		MaxRequestBytes: cfg.Intake.MaxRequestBytes,
	}
	if records != nil {
		deps.Health = records
	}
	handlers.RegisterRoutes(app, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	return app.ShutdownWithTimeout(10 * time.Second)
}

// openRecordStore selects the record backend. The returned close func is never nil.
func openRecordStore(ctx context.Context, cfg *config.AppConfig, rdb *redis.Client) (repository.RecordStore, func(), error) {
	noop := func() {}

	switch cfg.Intake.RecordStore {
	case config.RecordStoreRedis:
		return redisstore.NewRecordRedis(rdb), noop, nil

	case config.RecordStorePostgres:
		db, err := database.OpenRecordStore(ctx, cfg.Database)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open postgres record store: %w", err)
		}
		store := postgres.NewRecordPostgres(db)
		go store.RunPurge(ctx, cfg.Intake.RecordPurgeInterval)
		return store, func() { _ = db.Close() }, nil

	case config.RecordStoreNone:
		slog.Warn("RECORD_STORE=none, submissions will only be logged")
		return nil, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown RECORD_STORE %q", cfg.Intake.RecordStore)
	}
}

func newLimiter(cfg config.RateLimitConfig, rdb *redis.Client) (ratelimit.Limiter, error) {
	switch cfg.Backend {
	case config.RateLimitMemory:
		return ratelimit.NewMemory(cfg)
	case config.RateLimitRedis:
		return ratelimit.NewRedis(rdb, cfg)
	default:
		return nil, errors.New("unknown RATE_LIMIT_BACKEND " + cfg.Backend)
	}
}

// swaggerHandler serves Swagger UI with the host and scheme of the incoming request.
func swaggerHandler(c *fiber.Ctx) error {
	scheme := c.Protocol()
	if proto := c.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.Split(proto, ",")[0]
	}

	docs.SwaggerInfo.Host = c.Get("Host")
	docs.SwaggerInfo.Schemes = []string{scheme}

	return swagger.HandlerDefault(c)
}
