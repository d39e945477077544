// middleware/stream_auth.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// StreamAuthMiddleware validates `token` from the query string for event
// stream routes (/events/:channel, /ws/:channel). EventSource and WebSocket
// clients cannot set headers, so the gateway appends the service token as a
// query parameter when proxying subscriptions.
func StreamAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("MATCH_SERVICE_TOKEN")

	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			log.Printf("[StreamAuth] ❌ missing token for %s", c.Path())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token in query",
			})
		}
		if expectedToken == "" || token != expectedToken {
			log.Printf("[StreamAuth] ❌ invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		return c.Next()
	}
}
