package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/config"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/dto"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/services"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/tokens"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Limits are requests per minute per client IP.
type Limits struct {
	General int
	Auth    int
	// Storage is shared limiter state; nil keeps counters in memory.
	Storage fiber.Storage
}

func DefaultLimits() Limits {
	return Limits{General: 60, Auth: 10}
}

func ipLimiter(scope string, max int, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return scope + ":" + c.IP() },
		Storage:           storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Error: true, Code: "rate_limited", Message: "Too many requests",
			})
		},
	})
}

func Setup(
	app *fiber.App,
	cfg *config.Config,
	tokenService *tokens.Service,
	sessions *services.SessionService,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	credentialHandler *handlers.CredentialHandler,
	healthHandler *handlers.HealthHandler,
	limits Limits,
) {
	app.Get("/metrics", middleware.MetricsTokenRequired(cfg), metrics.Handler())

	api := app.Group("/api")
	api.Use(ipLimiter("api", limits.General, limits.Storage))

	api.Get("/health", healthHandler.Check)

	// Public auth endpoints get the stricter limit.
	auth := api.Group("/auth")
	auth.Use(ipLimiter("auth", limits.Auth, limits.Storage))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/otp/request", authHandler.RequestOTP)
	auth.Post("/otp/verify", authHandler.VerifyOTP)
	auth.Post("/oauth/login", authHandler.OAuthLogin)
	auth.Post("/token/refresh", authHandler.Refresh)

	protected := []fiber.Handler{middleware.JWTProtected(tokenService), middleware.ActiveUser(sessions)}
	auth.Get("/me", append(protected, authHandler.Me)...)
	auth.Patch("/me", append(protected, authHandler.UpdateMe)...)
	auth.Post("/logout", append(protected, authHandler.Logout)...)
	auth.Delete("/identities/:provider", append(protected, authHandler.UnlinkIdentity)...)

	admin := api.Group("/admin", append(protected, middleware.AdminRequired())...)
	admin.Get("/users", adminHandler.ListUsers)
	admin.Put("/users/:id/status", adminHandler.SetUserStatus)

	vault := api.Group("/platform-credentials", middleware.ServiceTokenRequired(cfg))
	vault.Post("/", credentialHandler.Save)
	vault.Get("/:user_id", credentialHandler.List)
	vault.Get("/:user_id/:platform_id/decrypt", credentialHandler.Decrypt)
	vault.Delete("/:user_id/:platform_id", credentialHandler.Deactivate)
}
