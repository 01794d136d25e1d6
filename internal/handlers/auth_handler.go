package handlers

import (
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/dto"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	sessions *services.SessionService
}

func NewAuthHandler(sessions *services.SessionService) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.sessions.Register(c.UserContext(), &req, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.sessions.Login(c.UserContext(), &req, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AuthHandler) RequestOTP(c *fiber.Ctx) error {
	var req dto.OTPRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.sessions.RequestOTP(c.UserContext(), &req, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req dto.OTPVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.sessions.VerifyOTP(c.UserContext(), &req, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AuthHandler) OAuthLogin(c *fiber.Ctx) error {
	var req dto.OAuthLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.sessions.OAuthLogin(c.UserContext(), &req, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.sessions.Refresh(c.UserContext(), &req, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return respondError(c, services.ErrInvalidToken)
	}
	return c.JSON(services.ToUserResponse(user))
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return respondError(c, services.ErrInvalidToken)
	}
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.sessions.UpdateProfile(c.UserContext(), user.ID, &req, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

// Logout is recorded for audit only. Tokens are stateless and the client is
// expected to discard them.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return respondError(c, services.ErrInvalidToken)
	}
	h.sessions.Logout(c.UserContext(), userID, requestMeta(c))
	return c.JSON(dto.MessageResponse{Message: "Successfully logged out"})
}

func (h *AuthHandler) UnlinkIdentity(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return respondError(c, services.ErrInvalidToken)
	}
	if err := h.sessions.UnlinkIdentity(c.UserContext(), user.ID, c.Params("provider"), requestMeta(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Identity unlinked"})
}
