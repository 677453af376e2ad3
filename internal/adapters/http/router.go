package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/tripsim/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 600 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, 429, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness, no timeout
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	with := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, requestTimeout) }

	v1.Get("/routes", with(ListRoutesHandler(deps)))
	v1.Post("/routes", with(CreateRouteHandler(deps)))
	v1.Post("/routes/active", with(ActiveRouteHandler(deps)))
	v1.Get("/routes/:id", with(GetRouteHandler(deps)))
	v1.Post("/routes/:id/waypoints", with(AddWaypointHandler(deps)))
	v1.Put("/routes/:id/waypoints/:index", with(MoveWaypointHandler(deps)))
	v1.Delete("/routes/:id/waypoints/:index", with(RemoveWaypointHandler(deps)))
	v1.Post("/routes/:id/toggle", with(TogglePlayHandler(deps)))
	v1.Post("/routes/:id/seek", with(SeekHandler(deps)))
	v1.Put("/routes/:id/speed", with(SetSpeedHandler(deps)))
	v1.Post("/routes/:id/delete-request", with(RequestDeleteHandler(deps)))

	v1.Get("/pending-delete", with(PendingDeleteHandler(deps)))
	v1.Post("/pending-delete/confirm", with(ConfirmDeleteHandler(deps)))
	v1.Post("/pending-delete/cancel", with(CancelDeleteHandler(deps)))

	v1.Post("/playback/pause-all", with(PauseAllHandler(deps)))
	v1.Post("/playback/resume-all", with(ResumeAllHandler(deps)))
	v1.Get("/simulator/stats", with(StatsHandler(deps)))

	v1.Post("/waypoints", with(AddActiveWaypointHandler(deps)))
	v1.Get("/search", with(SearchHandler(deps)))
	v1.Post("/search/select", with(SelectPlaceHandler(deps)))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, "api/openapi.yaml")

	// WebSocket relay needs NATS
	if deps.NATS != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
	}
}
