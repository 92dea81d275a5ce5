package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/placefinder/internal/pkg/logging"
)

// RequestLoggerMiddleware stores a logger carrying the Fiber request ID in the
// user context, where use cases pick it up with logging.FromContext.
func RequestLoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid, _ := c.Locals("requestid").(string)
		if rid == "" {
			return c.Next()
		}
		l := slog.Default().With("request_id", rid)
		c.SetUserContext(logging.WithLogger(c.UserContext(), l))
		return c.Next()
	}
}
