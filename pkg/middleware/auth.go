package middleware

import (
	"strings"

	"doc-verifier/pkg/auth"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WidgetTokenMiddleware checks the host-issued bearer token. A nil verifier
// lets every request through.
func WidgetTokenMiddleware(verifier *auth.TokenVerifier, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if verifier == nil {
			return c.Next()
		}

		token := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		if token == "" {
			logger.Warn("Missing widget token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization token required",
			})
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			logger.Warn("Invalid widget token", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("subject", claims.Subject)
		c.Locals("reference", claims.Reference)

		return c.Next()
	}
}
