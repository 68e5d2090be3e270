package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyLogger
)

// RequestIDLogMiddleware propagates the Fiber request id into the user
// context together with a request-scoped logger, so use-case code that
// only sees a context.Context can still log correlated lines.
func RequestIDLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid, _ := c.Locals("requestid").(string)
		if rid == "" {
			return c.Next()
		}

		ctx := context.WithValue(c.UserContext(), ctxKeyRequestID, rid)
		ctx = context.WithValue(ctx, ctxKeyLogger, slog.Default().With("request_id", rid))
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// LoggerFromCtx returns the request-scoped logger, or the default
// logger outside a request.
func LoggerFromCtx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// RequestIDFromCtx returns the request id, or "" outside a request.
func RequestIDFromCtx(ctx context.Context) string {
	rid, _ := ctx.Value(ctxKeyRequestID).(string)
	return rid
}
