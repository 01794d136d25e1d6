package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/models"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: Redact}))
	logger.Info("login", "email", "a@example.com", "password", "hunter22", "otp_code", "123456")

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "a@example.com", out["email"])
	assert.Equal(t, "[REDACTED]", out["password"])
	assert.Equal(t, "[REDACTED]", out["otp_code"])
}

func TestPGHandlerPersistsErrors(t *testing.T) {
	db := testutil.NewDB(t)
	h := NewPGHandler(db)
	defer h.Stop()

	logger := slog.New(NewMultiHandler(h)).With("request_id", "req-1")
	logger.Info("ignored")
	logger.Error("federated login failed", "provider", "apple", "error", errors.New("boom"), "token", "secret-value", "attempt", 2)
	h.Flush()

	var rows []models.SystemLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "ERROR", rows[0].Level)
	assert.Equal(t, "req-1", rows[0].RequestID)
	assert.Equal(t, "apple", rows[0].Provider)
	assert.Equal(t, "boom", rows[0].Error)
	assert.Contains(t, string(rows[0].Extra), "attempt")
	assert.NotContains(t, string(rows[0].Extra), "secret-value")
}

func TestCleanup(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Now().UTC()

	require.NoError(t, db.Create(&models.SystemLog{Timestamp: now.Add(-31 * 24 * time.Hour), Level: "ERROR"}).Error)
	require.NoError(t, db.Create(&models.SystemLog{Timestamp: now, Level: "ERROR"}).Error)
	require.NoError(t, db.Create(&models.OTPCode{Email: "a@example.com", Code: "111111", ExpiresAt: now.Add(-25 * time.Hour)}).Error)
	require.NoError(t, db.Create(&models.OTPCode{Email: "b@example.com", Code: "222222", ExpiresAt: now.Add(-time.Hour)}).Error)
	require.NoError(t, db.Create(&models.LoginAttempt{Email: "a@example.com", CreatedAt: now.Add(-400 * 24 * time.Hour)}).Error)

	Cleanup(db, now)

	var logs, codes, attempts int64
	db.Model(&models.SystemLog{}).Count(&logs)
	db.Model(&models.OTPCode{}).Count(&codes)
	db.Model(&models.LoginAttempt{}).Count(&attempts)
	assert.Equal(t, int64(1), logs)
	assert.Equal(t, int64(1), codes)
	assert.Equal(t, int64(1), attempts)
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestMultiHandlerKeepsDeliveringAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	ok := slog.NewJSONHandler(&buf, nil)
	h := NewMultiHandler(failingHandler{ok}, ok)

	r := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	err := h.Handle(context.Background(), r)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Contains(t, buf.String(), `"msg":"boom"`)
}
