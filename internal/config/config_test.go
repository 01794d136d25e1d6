package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DBPassword:       "secret",
		JWTSecret:        strings.Repeat("s", 32),
		JWTAccessExpiry:  30 * time.Minute,
		JWTRefreshExpiry: 168 * time.Hour,
		EncryptionKey:    base64.StdEncoding.EncodeToString(make([]byte, 32)),
		MaxLoginAttempts: 5,
		LockoutWindow:    30 * time.Minute,
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingEncryptionKey(t *testing.T) {
	cfg := validConfig()
	cfg.EncryptionKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")
}

func TestValidateRejectsShortEncryptionKey(t *testing.T) {
	cfg := validConfig()
	cfg.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("too-short"))

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestValidateRejectsNonBase64Key(t *testing.T) {
	cfg := validConfig()
	cfg.EncryptionKey = "not base64 at all!!"

	require.Error(t, cfg.Validate())
}

func TestValidateRejectsShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = "short"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestEncryptionKeyBytesAcceptsURLEncoding(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = 0xfb
	}
	cfg := validConfig()
	cfg.EncryptionKey = base64.URLEncoding.EncodeToString(raw)

	key, err := cfg.EncryptionKeyBytes()
	require.NoError(t, err)
	assert.Equal(t, raw, key)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_ACCESS_EXPIRY", "not-a-duration")
	t.Setenv("MAX_LOGIN_ATTEMPTS", "")
	t.Setenv("ADMIN_EMAILS", " Root@Example.com , ops@example.com,")

	cfg := Load()
	assert.Equal(t, 30*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, 5, cfg.MaxLoginAttempts)
	assert.Equal(t, 10*time.Minute, cfg.OTPExpiry)
	assert.Equal(t, []string{"root@example.com", "ops@example.com"}, cfg.AdminEmailList())
}
