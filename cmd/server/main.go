package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/audit"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/config"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/database"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/dto"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/federation"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/logging"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/platforms"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/ratelimit"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/routes"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/security"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/services"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/tokens"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	logging.Setup(cfg.AppEnv == "development")

	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", "error", err)
	}

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		fatal("invalid encryption key", "error", err)
	}
	cipher, err := security.NewCipher(key)
	if err != nil {
		fatal("cipher init failed", "error", err)
	}
	hasher, err := security.NewPasswordHasher(security.Argon2Params{
		Memory:      cfg.PasswordMemoryKB,
		Time:        cfg.PasswordTime,
		Parallelism: cfg.PasswordParallelism,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		fatal("password hasher init failed", "error", err)
	}
	tokenService, err := tokens.NewService(tokens.Config{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.JWTAccessExpiry,
		RefreshTTL: cfg.JWTRefreshExpiry,
	})
	if err != nil {
		fatal("token service init failed", "error", err)
	}

	catalogue, err := platforms.LoadFromFile(cfg.PlatformsConfigPath)
	if err != nil {
		fatal("failed to load platform catalogue", "path", cfg.PlatformsConfigPath, "error", err)
	}
	slog.Info("platform catalogue loaded", "platforms", len(catalogue.All()))

	// Database
	if err := database.Connect(cfg); err != nil {
		fatal("database connection failed", "error", err)
	}
	if err := database.Migrate(database.DB); err != nil {
		fatal("migration failed", "error", err)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo, ReplaceAttr: logging.Redact}),
		pgLogHandler,
	)))

	// Log and expired code cleanup
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	// Audit trail: database always, Kafka when brokers are configured
	var sink audit.Sink = audit.NewGormSink(database.DB)
	var kafkaSink *audit.KafkaSink
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		kafkaSink = audit.NewKafkaSink(brokers, cfg.KafkaAuditTopic)
		sink = audit.MultiSink{sink, kafkaSink}
		slog.Info("audit fan-out enabled", "topic", cfg.KafkaAuditTopic)
	}
	recorder := audit.NewRecorder(sink)

	broker := buildBroker(cfg)
	var mailer services.Mailer = services.LogMailer{}
	if cfg.SMTPHost != "" {
		mailer = services.NewSMTPMailer(services.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	// Services
	store := services.NewIdentityStore(database.DB, cipher, cfg.AdminEmailList())
	sessions, err := services.NewSessionService(services.SessionDeps{
		Store:  store,
		Hasher: hasher,
		Tokens: tokenService,
		OTP:    services.NewOTPService(database.DB, cfg.OTPExpiry),
		Ledger: services.NewAttemptLedger(database.DB, services.LockoutPolicy{
			Threshold: cfg.MaxLoginAttempts,
			Window:    cfg.LockoutWindow,
		}),
		Broker: broker,
		Mailer: mailer,
		Audit:  recorder,
	})
	if err != nil {
		fatal("session service init failed", "error", err)
	}
	vault := services.NewVault(database.DB, cipher, catalogue)

	// Handlers
	authHandler := handlers.NewAuthHandler(sessions)
	adminHandler := handlers.NewAdminHandler(sessions)
	credentialHandler := handlers.NewCredentialHandler(vault, recorder)
	healthHandler := handlers.NewHealthHandler(database.DB, sessions)

	limits := routes.DefaultLimits()
	var limiterStorage *ratelimit.RedisStorage
	if cfg.RedisURL != "" {
		limiterStorage, err = ratelimit.Connect(context.Background(), cfg.RedisURL)
		if err != nil {
			fatal("redis connection failed", "error", err)
		}
		limits.Storage = limiterStorage
		slog.Info("rate limiter using redis")
	}

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Cache-Control", "no-store")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, tokenService, sessions, authHandler, adminHandler, credentialHandler, healthHandler, limits)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "providers", len(broker.Enabled()))
		if err := app.Listen(":" + cfg.Port); err != nil {
			fatal("server failed to start", "error", err)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			slog.Error("kafka writer close error", "error", err)
		}
	}
	if limiterStorage != nil {
		if err := limiterStorage.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}

	// Close database connections
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

// buildBroker registers an adapter for every provider whose credentials are
// configured. A misconfigured provider is logged and left disabled.
func buildBroker(cfg *config.Config) *federation.Broker {
	broker := federation.NewBroker(cfg.OAuthTimeout)

	if cfg.GoogleClientID != "" {
		if a, err := federation.NewGoogleAdapter(federation.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		}); err != nil {
			slog.Error("google login disabled", "provider", "google", "error", err)
		} else {
			broker.Register(federation.ProviderGoogle, a)
		}
	}
	if cfg.MicrosoftClientID != "" {
		if a, err := federation.NewMicrosoftAdapter(federation.MicrosoftConfig{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
		}); err != nil {
			slog.Error("microsoft login disabled", "provider", "microsoft", "error", err)
		} else {
			broker.Register(federation.ProviderMicrosoft, a)
		}
	}
	if cfg.AppleClientID != "" {
		if a, err := federation.NewAppleAdapter(federation.AppleConfig{
			ClientID:      cfg.AppleClientID,
			TeamID:        cfg.AppleTeamID,
			KeyID:         cfg.AppleKeyID,
			PrivateKeyPEM: cfg.ApplePrivateKey,
		}); err != nil {
			slog.Error("apple login disabled", "provider", "apple", "error", err)
		} else {
			broker.Register(federation.ProviderApple, a)
		}
	}
	return broker
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{
		Error:   true,
		Code:    errorCode(code),
		Message: message,
	})
}

func errorCode(status int) string {
	switch {
	case status == fiber.StatusUnauthorized:
		return "unauthorized"
	case status == fiber.StatusForbidden:
		return "forbidden"
	case status == fiber.StatusNotFound:
		return "not_found"
	case status == fiber.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "internal_error"
	default:
		return "validation_error"
	}
}
