package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"dropstack/docs"
	"dropstack/internal/config"
	"dropstack/internal/database"
	"dropstack/internal/database/migration"
	handlers "dropstack/internal/http/handler"
	"dropstack/internal/http/middleware"
	"dropstack/internal/logger"
	"dropstack/internal/otel"
	"dropstack/internal/repository/postgres"
	"dropstack/internal/service"
	"dropstack/internal/storage"
)

// multipart framing on top of the content itself
const bodyLimitSlack = 1 << 20

func newServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply pending schema migrations before serving")
	return cmd
}

// @title        dropstack API
// @version      1.0
// @BasePath     /
// @securityDefinitions.apikey BearerAuth
// @in           header
// @name         Authorization
func serve(ctx context.Context, cfg *config.AppConfig, autoMigrate bool) error {
	log := logger.New(cfg.Log.Level, cfg.Location())

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if autoMigrate {
		if _, err := migration.Run(ctx, db, log); err != nil {
			return err
		}
	}

	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("initialize object storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svcMetrics, err := service.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register service metrics: %w", err)
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	maxUpload := cfg.Upload.MaxSizeBytes()
	docSvc := service.NewDocumentService(
		objStore,
		postgres.NewDocumentPostgres(db),
		postgres.NewAuditPostgres(db),
		service.Options{
			DefaultBucket: cfg.MinIO.Bucket,
			Timeouts:      cfg.Timeouts,
			Pagination:    cfg.Pagination,
			MaxUploadSize: maxUpload,
			Logger:        log,
			Metrics:       svcMetrics,
		},
	)

	verifier, err := middleware.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("initialize token verifier: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "dropstack",
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             int(maxUpload) + bodyLimitSlack,
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(httpMetrics.Handler())

	handlers.RegisterRoutes(app, db, docSvc, middleware.Auth(verifier))
	handlers.RegisterMetrics(app, reg)

	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}
		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}
		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("bucket", cfg.MinIO.Bucket).Msg("server listening")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
