package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/config"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/dto"
	"github.com/gofiber/fiber/v2"
)

const ServiceTokenHeader = "X-Service-Token"

// ServiceTokenRequired guards the credential vault. Only the automation
// collaborator holds the token; with no token configured the routes are off.
func ServiceTokenRequired(cfg *config.Config) fiber.Handler {
	return staticToken(cfg.ServiceToken, "Credential vault is not enabled", func(c *fiber.Ctx) string {
		return c.Get(ServiceTokenHeader)
	})
}

// MetricsTokenRequired guards the Prometheus endpoint. Scrapers present the
// token as a bearer credential; with no token configured the endpoint is off.
func MetricsTokenRequired(cfg *config.Config) fiber.Handler {
	return staticToken(cfg.MetricsToken, "Metrics are not enabled", func(c *fiber.Ctx) string {
		auth := c.Get(fiber.HeaderAuthorization)
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			return auth[7:]
		}
		return ""
	})
}

func staticToken(token, disabled string, extract func(*fiber.Ctx) string) fiber.Handler {
	expected := []byte(token)

	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Error: true, Code: "unavailable", Message: disabled,
			})
		}
		if subtle.ConstantTimeCompare([]byte(extract(c)), expected) != 1 {
			return unauthorized(c, "Invalid service token")
		}
		return c.Next()
	}
}
