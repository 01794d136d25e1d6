package handlers

import (
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/audit"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/dto"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// CredentialHandler serves the vault to the automation collaborator. Every
// route sits behind the service token.
type CredentialHandler struct {
	vault *services.Vault
	audit *audit.Recorder
}

func NewCredentialHandler(vault *services.Vault, recorder *audit.Recorder) *CredentialHandler {
	return &CredentialHandler{vault: vault, audit: recorder}
}

func (h *CredentialHandler) record(c *fiber.Ctx, userID uuid.UUID, action, platformID string) {
	h.audit.Record(c.UserContext(), audit.Entry{
		UserID:    &userID,
		Action:    action,
		Resource:  "platform_credential",
		Details:   map[string]any{"platform_id": platformID},
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
}

func (h *CredentialHandler) Save(c *fiber.Ctx) error {
	var req dto.SaveCredentialRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}

	err = h.vault.Save(c.UserContext(), services.CredentialInput{
		UserID:     userID,
		PlatformID: req.PlatformID,
		Username:   req.Username,
		Password:   req.Password,
		APIKey:     req.APIKey,
	})
	if err != nil {
		return respondError(c, err)
	}
	h.record(c, userID, audit.ActionCredentialSave, req.PlatformID)
	return c.JSON(dto.MessageResponse{Message: "Credentials saved successfully"})
}

func (h *CredentialHandler) Decrypt(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	platformID := c.Params("platform_id")

	resp, err := h.vault.Decrypt(c.UserContext(), userID, platformID)
	if err != nil {
		return respondError(c, err)
	}
	h.record(c, userID, audit.ActionCredentialAccess, platformID)
	return c.JSON(resp)
}

func (h *CredentialHandler) List(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	resp, err := h.vault.List(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *CredentialHandler) Deactivate(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	platformID := c.Params("platform_id")

	if err := h.vault.Deactivate(c.UserContext(), userID, platformID); err != nil {
		return respondError(c, err)
	}
	h.record(c, userID, audit.ActionCredentialDisable, platformID)
	return c.JSON(dto.MessageResponse{Message: "Credentials deactivated"})
}
