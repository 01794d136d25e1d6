package middleware

import (
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/services"
	"github.com/gofiber/fiber/v2"
)

// AdminRequired must run after ActiveUser. The role is read from the
// database, not from the token, so a demotion applies immediately.
func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return unauthorized(c, "Unauthorized")
		}
		if !user.IsElevated() {
			return forbidden(c, services.ErrInsufficientRole.Error())
		}
		return c.Next()
	}
}
