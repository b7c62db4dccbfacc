package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Admin          *handlers.AdminHandler
	TicketEvents   *handlers.TicketEventsHandler
	Queries        *handlers.SLAQueriesHandler
	Reports        *handlers.ReportsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.Post("/departments", cfg.Admin.CreateDepartment)
	admin.Get("/departments", cfg.Admin.ListDepartments)
	admin.Delete("/departments/:id", cfg.Admin.DeactivateDepartment)
	admin.Put("/departments/:id/policy", cfg.Admin.SetPolicy)
	admin.Get("/departments/:id/policy", cfg.Admin.GetCurrentPolicy)
	admin.Get("/departments/:id/policy/history", cfg.Admin.PolicyHistory)
	admin.Post("/sla/rebuild", cfg.Admin.RebuildClocks)

	events := api.Group("/tickets", auth.RequireRole(auth.RoleIngestor, auth.RoleAdmin))
	events.Post("", cfg.TicketEvents.Register)
	events.Post("/:id/assign", cfg.TicketEvents.Assign)
	events.Post("/:id/accept", cfg.TicketEvents.Accept)
	events.Post("/:id/start", cfg.TicketEvents.Start)
	events.Post("/:id/block", cfg.TicketEvents.Block)
	events.Post("/:id/unblock", cfg.TicketEvents.Unblock)
	events.Post("/:id/complete", cfg.TicketEvents.Complete)
	events.Post("/:id/cancel", cfg.TicketEvents.Cancel)

	read := auth.RequireRole(auth.RoleAgent, auth.RoleSupervisor, auth.RoleAdmin)
	api.Get("/tickets/:id", read, cfg.Queries.GetTicket)
	api.Get("/tickets/:id/transitions", read, cfg.Queries.ListTransitions)
	api.Get("/departments/:id/blocked", read, cfg.Queries.BlockedTickets)
	api.Get("/departments/:id/at-risk", read, cfg.Queries.AtRiskTickets)

	reports := auth.RequireRole(auth.RoleSupervisor, auth.RoleAdmin)
	api.Get("/departments/:id/trend", reports, cfg.Reports.DepartmentTrend)
	api.Get("/departments/:id/exceptions", reports, cfg.Reports.Exceptions)
	api.Get("/reports/trend", reports, cfg.Reports.Trend)
	api.Get("/reports/impact", reports, cfg.Reports.Impact)
}
