package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const encryptionKeyLength = 32

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTIssuer        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Secret vault (base64, 32 bytes)
	EncryptionKey string

	// Password hashing (argon2id)
	PasswordMemoryKB    uint32
	PasswordTime        uint32
	PasswordParallelism uint8

	// Login protection
	OTPExpiry        time.Duration
	MaxLoginAttempts int
	LockoutWindow    time.Duration

	// Federation
	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string
	AppleClientID         string
	AppleTeamID           string
	AppleKeyID            string
	ApplePrivateKey       string
	OAuthTimeout          time.Duration

	// OTP delivery
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Infrastructure
	RedisURL        string
	KafkaBrokers    string
	KafkaAuditTopic string

	// Collaborators
	ServiceToken        string
	MetricsToken        string
	AdminEmails         string
	PlatformsConfigPath string

	// Server
	Port        string
	CORSOrigins string
	SentryDSN   string
	AppEnv      string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "identity_core"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTIssuer:        getEnv("JWT_ISSUER", "identity-core"),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "30m"), 30*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		PasswordMemoryKB:    uint32(parseInt(getEnv("PASSWORD_MEMORY_KB", "65536"), 65536)),
		PasswordTime:        uint32(parseInt(getEnv("PASSWORD_TIME", "3"), 3)),
		PasswordParallelism: uint8(parseInt(getEnv("PASSWORD_PARALLELISM", "2"), 2)),

		OTPExpiry:        parseDuration(getEnv("OTP_EXPIRY", "10m"), 10*time.Minute),
		MaxLoginAttempts: parseInt(getEnv("MAX_LOGIN_ATTEMPTS", "5"), 5),
		LockoutWindow:    parseDuration(getEnv("LOCKOUT_WINDOW", "30m"), 30*time.Minute),

		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		MicrosoftClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
		AppleClientID:         getEnv("APPLE_CLIENT_ID", ""),
		AppleTeamID:           getEnv("APPLE_TEAM_ID", ""),
		AppleKeyID:            getEnv("APPLE_KEY_ID", ""),
		ApplePrivateKey:       getEnv("APPLE_PRIVATE_KEY", ""),
		OAuthTimeout:          parseDuration(getEnv("OAUTH_TIMEOUT", "10s"), 10*time.Second),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),

		RedisURL:        getEnv("REDIS_URL", ""),
		KafkaBrokers:    getEnv("KAFKA_BROKERS", ""),
		KafkaAuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "identity.audit"),

		ServiceToken:        getEnv("SERVICE_TOKEN", ""),
		MetricsToken:        getEnv("METRICS_TOKEN", ""),
		AdminEmails:         getEnv("ADMIN_EMAILS", ""),
		PlatformsConfigPath: getEnv("PLATFORMS_CONFIG_PATH", "platforms.json"),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		AppEnv:      getEnv("APP_ENV", ""),
	}
}

// Validate reports configuration that must stop the process at startup.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if _, err := c.EncryptionKeyBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.DBPassword == "" {
		errs = append(errs, errors.New("DB_PASSWORD environment variable is required"))
	}
	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= c.JWTAccessExpiry {
		errs = append(errs, errors.New("JWT_REFRESH_EXPIRY must be longer than JWT_ACCESS_EXPIRY"))
	}
	if c.MaxLoginAttempts < 1 || c.LockoutWindow <= 0 {
		errs = append(errs, errors.New("MAX_LOGIN_ATTEMPTS and LOCKOUT_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

// EncryptionKeyBytes decodes ENCRYPTION_KEY. Both standard and URL-safe
// base64 are accepted; the decoded key must be exactly 32 bytes.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, errors.New("ENCRYPTION_KEY environment variable is required")
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		key, err := enc.DecodeString(c.EncryptionKey)
		if err != nil {
			continue
		}
		if len(key) != encryptionKeyLength {
			return nil, fmt.Errorf("ENCRYPTION_KEY must decode to %d bytes, got %d", encryptionKeyLength, len(key))
		}
		return key, nil
	}
	return nil, errors.New("ENCRYPTION_KEY must be base64 encoded")
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func (c *Config) KafkaBrokerList() []string {
	return parseCSV(c.KafkaBrokers)
}

func (c *Config) AdminEmailList() []string {
	emails := parseCSV(c.AdminEmails)
	for i, e := range emails {
		emails[i] = strings.ToLower(e)
	}
	return emails
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
