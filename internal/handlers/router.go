package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Dependencies wires the HTTP routes to their services
type Dependencies struct {
	Monitor       JobRunner
	Subscriptions Subscriptions
	Lookup        ProcessLookup
	Status        StatusSource
	DB            Pinger
	CronSecret    string
	JWTSecret     string
	// DisableLogger turns off request logging, for tests
	DisableLogger bool
}

// NewApp builds the fiber application with every route registered
func NewApp(deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Clausify",
	})

	app.Use(recover.New())
	if !deps.DisableLogger {
		app.Use(logger.New())
	}

	// Pages
	app.Get("/", StatusHandler(deps.Status))
	app.Get("/healthz", HealthHandler(deps.DB))

	// Cron trigger; GET is accepted for schedulers that cannot POST
	cron := app.Group("/api/cron", RequireSecret(deps.CronSecret))
	cron.Post("/monitoring", MonitoringJobHandler(deps.Monitor))
	cron.Get("/monitoring", MonitoringJobHandler(deps.Monitor))

	api := app.Group("/api")
	user := RequireUser(deps.JWTSecret)

	// Monitored process routes
	api.Post("/monitored-processes", user, AddMonitoredHandler(deps.Subscriptions))
	api.Get("/monitored-processes", user, ListMonitoredHandler(deps.Subscriptions))
	api.Delete("/monitored-processes/:id", user, DeleteMonitoredHandler(deps.Subscriptions))
	api.Patch("/monitored-processes/:id", user, UpdateMonitoredHandler(deps.Subscriptions))

	// Process routes; search is registered before the :cnj param route
	api.Get("/processes/search", user, SearchHandler(deps.Lookup))
	api.Get("/processes/:cnj/report.pdf", user, ReportPDFHandler(deps.Lookup))
	api.Get("/processes/:cnj/report.json", user, ReportJSONHandler(deps.Lookup))
	api.Get("/processes/:cnj", user, ProcessHandler(deps.Lookup))

	return app
}
