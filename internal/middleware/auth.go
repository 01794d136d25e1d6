package middleware

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/dto"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/models"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/services"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/tokens"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenLocal = "user"
	userLocal  = "current_user"
)

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Code: "unauthorized", Message: msg,
	})
}

func forbidden(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
		Error: true, Code: "forbidden", Message: msg,
	})
}

// JWTProtected accepts only access tokens signed by svc.
func JWTProtected(svc *tokens.Service) fiber.Handler {
	return jwtware.New(jwtware.Config{
		KeyFunc:    svc.Keyfunc,
		Claims:     &tokens.Claims{},
		ContextKey: tokenLocal,
		SuccessHandler: func(c *fiber.Ctx) error {
			claims, err := Claims(c)
			if err != nil || svc.Accept(claims, tokens.KindAccess) != nil {
				return unauthorized(c, "Unauthorized: invalid or expired token")
			}
			return c.Next()
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return unauthorized(c, "Unauthorized: invalid or expired token")
		},
	})
}

// Claims returns the verified token claims placed in locals by JWTProtected.
func Claims(c *fiber.Ctx) (*tokens.Claims, error) {
	token, ok := c.Locals(tokenLocal).(*jwt.Token)
	if !ok || token == nil {
		return nil, errors.New("invalid token in context")
	}
	claims, ok := token.Claims.(*tokens.Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	claims, err := Claims(c)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.UserID()
}

// ActiveUser loads the token subject and rejects users that were removed or
// deactivated after the token was issued.
func ActiveUser(sessions *services.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := GetUserID(c)
		if err != nil {
			return unauthorized(c, "Unauthorized")
		}
		user, err := sessions.CurrentUser(c.UserContext(), userID)
		switch {
		case errors.Is(err, services.ErrForbidden):
			return forbidden(c, "User account is deactivated")
		case errors.Is(err, services.ErrUnauthorized):
			return unauthorized(c, "User not found")
		case err != nil:
			return err
		}
		c.Locals(userLocal, user)
		return c.Next()
	}
}

// CurrentUser returns the user loaded by ActiveUser.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userLocal).(*models.User)
	return user
}
