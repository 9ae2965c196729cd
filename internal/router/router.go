package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/crm-activity-api/internal/config"
	"github.com/noah-isme/crm-activity-api/internal/handler"
	"github.com/noah-isme/crm-activity-api/internal/middleware"
	"github.com/noah-isme/crm-activity-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ActivityHandler       *handler.ActivityHandler
	ActivityStreamHandler *handler.ActivityStreamHandler
	RecentlyViewedHandler *handler.RecentlyViewedHandler
	SubjectHandler        *handler.SubjectHandler
	HealthProbes          map[string]handler.HealthProbe
	JWTMiddleware         fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ActivityHandler != nil {
		activities := api.Group("/activities", jwtMiddleware)
		if deps.ActivityStreamHandler != nil {
			deps.ActivityStreamHandler.Register(activities)
		}
		deps.ActivityHandler.Register(activities, middleware.RateLimit("activities_export", cfg.ExportRateLimit, time.Minute))

		admin := api.Group("/admin/activities", jwtMiddleware, middleware.RequireRole(middleware.AuthRoleAdmin))
		deps.ActivityHandler.RegisterAdmin(admin)
	}

	if deps.RecentlyViewedHandler != nil {
		recent := api.Group("/recently-viewed", jwtMiddleware)
		deps.RecentlyViewedHandler.Register(recent)
	}

	// Subject routes match any collection segment, so they go last.
	if deps.SubjectHandler != nil {
		subjects := api.Group("", jwtMiddleware)
		deps.SubjectHandler.Register(subjects)
	}
}
