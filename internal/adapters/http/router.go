package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/tsig-uy/mapgate/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 300 requests per minute per IP. Map interaction is
	// chatty (clicks, drags), so the ceiling sits well above the WMS
	// throttler's own pacing.
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness skip the timeout wrapper; the checks are local.
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	const reqTimeout = 20 * time.Second

	v1 := app.Group("/v1")

	// Map sessions
	v1.Post("/sessions", CreateSessionHandler(deps))
	v1.Delete("/sessions/:id", DeleteSessionHandler(deps))
	v1.Post("/sessions/:id/click", timeout.NewWithContext(ClickHandler(deps), reqTimeout))

	// Disambiguation
	v1.Get("/sessions/:id/candidates", CandidatesHandler(deps))
	v1.Post("/sessions/:id/candidates/select", SelectCandidateHandler(deps))
	v1.Delete("/sessions/:id/candidates", DismissCandidatesHandler(deps))

	// Route drafting
	v1.Post("/sessions/:id/draft", StartDraftHandler(deps))
	v1.Delete("/sessions/:id/draft", CancelDraftHandler(deps))
	v1.Get("/sessions/:id/draft", DraftSnapshotHandler(deps))
	v1.Post("/sessions/:id/draft/points", AddPointHandler(deps))
	v1.Patch("/sessions/:id/draft/points/:pid", MovePointHandler(deps))
	v1.Delete("/sessions/:id/draft/points/:pid", DeletePointHandler(deps))
	v1.Post("/sessions/:id/draft/verify", timeout.NewWithContext(VerifyDraftHandler(deps), reqTimeout))
	v1.Delete("/sessions/:id/draft/validation", CancelValidationHandler(deps))
	v1.Post("/sessions/:id/draft/save", timeout.NewWithContext(SaveDraftHandler(deps), reqTimeout))
	v1.Get("/sessions/:id/draft/preview", timeout.NewWithContext(DraftPreviewHandler(deps), reqTimeout))

	// Anonymous line search
	v1.Get("/lines/search", timeout.NewWithContext(SearchLinesHandler(deps), reqTimeout))
	v1.Delete("/stops/:name", timeout.NewWithContext(DeleteStopHandler(deps), reqTimeout))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
