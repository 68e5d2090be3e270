package http

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ETagMiddleware sets a weak ETag on cacheable GET responses and
// answers 304 when the client already holds the current body. Session
// state moves fast, so no-store responses are left untouched; this
// mostly pays off on the line-search proxy, whose payloads change
// rarely and compress the worst.
func ETagMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if c.Method() != fiber.MethodGet || c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}
		if strings.Contains(string(c.Response().Header.Peek(fiber.HeaderCacheControl)), "no-store") {
			return nil
		}

		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		h := fnv.New64a()
		h.Write(body)
		etag := `W/"` + strconv.FormatUint(h.Sum64(), 16) + `"`
		c.Set(fiber.HeaderETag, etag)

		// If-None-Match may carry a list; a match on any entry suffices.
		for _, candidate := range strings.Split(c.Get(fiber.HeaderIfNoneMatch), ",") {
			if strings.TrimSpace(candidate) == etag {
				c.Status(fiber.StatusNotModified)
				c.Response().ResetBody()
				break
			}
		}
		return nil
	}
}
