package http

import (
	"path/filepath"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/placefinder/internal/core/domain"
)

// ImageHandler serves stored images by key from the image store.
func ImageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Params("key")
		f, err := deps.Images.Open(domain.ImageRef{Key: key})
		if err != nil {
			return writeError(c, err)
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return writeError(c, err)
		}
		if info.IsDir() {
			_ = f.Close()
			return writeError(c, domain.ErrNotFound)
		}
		c.Type(filepath.Ext(key))
		// The response closes f once the body is written.
		return c.SendStream(f, int(info.Size()))
	}
}
