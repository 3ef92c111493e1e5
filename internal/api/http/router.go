package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-bot/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-bot/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Stats          *handlers.StatsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)
	api.Get("/stats/daily", cfg.Stats.Daily)
	api.Get("/stats/weekly", cfg.Stats.Weekly)
	api.Get("/metrics", cfg.Stats.Metrics)
	api.Get("/tickets", cfg.Tickets.ListTickets)
	api.Get("/tickets/:id", cfg.Tickets.GetTicket)
}
