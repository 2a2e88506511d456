package handlers

import (
	"context"
	"log"
	"time"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/clausify/clausify/internal/service"
	"github.com/clausify/clausify/internal/templates"
)

// StatusSource supplies the figures shown on the status page
type StatusSource interface {
	Calculate(ctx context.Context) (*service.SystemMetrics, error)
	GetLatestMetrics(ctx context.Context) (map[string]string, error)
}

// Pinger reports database reachability
type Pinger interface {
	PingContext(ctx context.Context) error
}

func StatusHandler(source StatusSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		metrics := templates.StatusMetrics{}

		current, err := source.Calculate(ctx)
		if err != nil {
			log.Printf("Error calculating metrics: %v", err)
		} else {
			metrics.HasData = current.TotalProcesses > 0
			metrics.TotalProcesses = current.TotalProcesses
			metrics.TotalMovements = current.TotalMovements
			metrics.MonitoredActive = current.MonitoredActive
			metrics.MonitoredSuspended = current.MonitoredSuspended
			metrics.MonitoredFailing = current.MonitoredFailing
			metrics.DueNow = current.DueNow
		}

		latest, err := source.GetLatestMetrics(ctx)
		if err != nil {
			log.Printf("Error loading latest metrics: %v", err)
		} else {
			metrics.LastRunAt = latest[service.MetricLastRunAt]
			metrics.LastUpdated = latest[service.MetricLastUpdated]
			metrics.LastFailed = latest[service.MetricLastFailed]
		}

		page := templates.Status(metrics)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}

func HealthHandler(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			log.Printf("Health check failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}

		return c.JSON(fiber.Map{"status": "ok"})
	}
}
