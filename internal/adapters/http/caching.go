package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets default Cache-Control headers on GET responses.
// A value already set by the handler is kept.
func CachingMiddleware(publicPrefix string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet {
			return err
		}
		if existing := c.GetRespHeader(fiber.HeaderCacheControl); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/detect":
			ttl = "no-store"
		case path == "/v1/health" || path == "/v1/ready" || path == "/metrics":
			ttl = "no-cache"
		case publicPrefix != "" && strings.HasPrefix(path, publicPrefix+"/"):
			ttl = "public, max-age=86400, immutable" // stored images are never overwritten
		case path == "/v1/places":
			ttl = "public, max-age=30"
		case strings.HasPrefix(path, "/v1/places/"):
			ttl = "public, max-age=600"
		case strings.HasPrefix(path, "/v1/"):
			ttl = "private, max-age=0"
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}
