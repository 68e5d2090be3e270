package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// AccessLogMiddleware emits one structured slog line per request.
// Map interaction traffic is chatty, so /metrics and the WebSocket
// upgrade are skipped, and the session id is pulled from the route
// params to make per-session grepping possible.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/metrics" || path == "/ws" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if ferr, ok := err.(*fiber.Error); ok {
			status = ferr.Code
		}

		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes_out", len(c.Response().Body())),
		}
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			attrs = append(attrs, slog.String("request_id", rid))
		}
		if sid := c.Params("id"); sid != "" {
			attrs = append(attrs, slog.String("session_id", sid))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		level := slog.LevelInfo
		switch {
		case status >= 500 || err != nil:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		slog.LogAttrs(c.UserContext(), level, "http request", attrs...)
		return err
	}
}
