package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dropstack/internal/service"
)

// RegisterRoutes attaches the health probes and the owner-scoped document API.
// auth must resolve the owner identity (see middleware.Auth); it guards /api only.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService, auth fiber.Handler) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	api := app.Group(documentsPath, auth)
	api.Get("/", ListDocuments(docSvc))
	api.Post("/", CreateDocument(docSvc))
	api.Get("/:id", GetDocument(docSvc))
	api.Put("/:id", UpdateDocument(docSvc))
	api.Delete("/:id", DeleteDocument(docSvc))
	api.Get("/:id/content", DownloadDocument(docSvc))
	api.Post("/:id/checkin", CheckInDocument(docSvc))
	api.Get("/:id/audits", ListDocumentAudits(docSvc))
}

// RegisterMetrics exposes g in the Prometheus text format at /metrics.
func RegisterMetrics(app *fiber.App, g prometheus.Gatherer) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
