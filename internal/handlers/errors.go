package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/dto"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/federation"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/security"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/services"
	"github.com/gofiber/fiber/v2"
)

// respondError maps a service error to its status and stable code. Anything
// unrecognised is logged and reported as a generic internal error.
func respondError(c *fiber.Ctx, err error) error {
	status, code, msg := fiber.StatusInternalServerError, "internal_error", "Internal server error"

	var fedErr *federation.Error
	switch {
	case errors.Is(err, services.ErrEmailTaken):
		status, code, msg = fiber.StatusConflict, "validation_error", err.Error()
	case errors.Is(err, services.ErrValidation):
		status, code, msg = fiber.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, services.ErrUnauthorized):
		status, code, msg = fiber.StatusUnauthorized, "unauthorized", err.Error()
	case errors.Is(err, services.ErrForbidden):
		status, code, msg = fiber.StatusForbidden, "forbidden", err.Error()
	case errors.Is(err, services.ErrRateLimited):
		status, code, msg = fiber.StatusTooManyRequests, "rate_limited", err.Error()
	case errors.Is(err, services.ErrNotFound):
		status, code, msg = fiber.StatusNotFound, "not_found", err.Error()
	case errors.As(err, &fedErr):
		status, code, msg = fiber.StatusBadRequest, "federation_error", fedErr.Error()
	case errors.Is(err, security.ErrDecryption):
		status, code, msg = fiber.StatusUnprocessableEntity, "decryption_error", "Stored credential could not be decrypted"
		slog.Error("credential decryption failed", "path", c.Path(), "error", err)
	default:
		slog.Error("request failed", "path", c.Path(), "error", err)
	}

	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Code: code, Message: msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Code: "validation_error", Message: msg,
	})
}

func requestMeta(c *fiber.Ctx) services.RequestMeta {
	return services.RequestMeta{IPAddress: c.IP(), UserAgent: c.Get(fiber.HeaderUserAgent)}
}
