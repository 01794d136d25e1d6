package handlers

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/database"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/dto"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db       *gorm.DB
	sessions *services.SessionService
}

func NewHealthHandler(db *gorm.DB, sessions *services.SessionService) *HealthHandler {
	return &HealthHandler{db: db, sessions: sessions}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status, dbStatus := "ok", "ok"
	if err := database.Ping(ctx, h.db); err != nil {
		status, dbStatus = "degraded", "unhealthy"
	}

	providers := []string{}
	for _, p := range h.sessions.Providers() {
		providers = append(providers, string(p))
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(dto.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Providers: providers,
	})
}
