package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestContext tags every request with an id and parses the X-Api-Version
// header into context.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals("requestId", requestID)
		c.Set(fiber.HeaderXRequestID, requestID)

		version := c.Get("X-Api-Version", "1.0.0")

		// Support version aliases
		if version == "1.0" || version == "1" {
			version = "1.0.0"
		}

		// Store version in context
		c.Locals("apiVersion", version)

		return c.Next()
	}
}
