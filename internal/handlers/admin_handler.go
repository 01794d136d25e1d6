package handlers

import (
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/dto"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AdminHandler struct {
	sessions *services.SessionService
}

func NewAdminHandler(sessions *services.SessionService) *AdminHandler {
	return &AdminHandler{sessions: sessions}
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	resp, err := h.sessions.ListUsers(c.UserContext(), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AdminHandler) SetUserStatus(c *fiber.Ctx) error {
	targetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	var req dto.UserStatusRequest
	if err := c.BodyParser(&req); err != nil || req.IsActive == nil {
		return badRequest(c, "is_active is required")
	}

	admin := middleware.CurrentUser(c)
	resp, err := h.sessions.SetUserStatus(c.UserContext(), admin.ID, targetID, *req.IsActive, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}
