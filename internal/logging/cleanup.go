package logging

import (
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/models"
	"gorm.io/gorm"
)

const (
	systemLogRetention = 30 * 24 * time.Hour
	otpRetention       = 24 * time.Hour
)

// StartCleanup runs a daily goroutine that prunes system logs and long
// expired one-time codes. Login attempts and audit logs are never pruned.
func StartCleanup(db *gorm.DB, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				Cleanup(db, time.Now().UTC())
			case <-done:
				return
			}
		}
	}()
}

// Cleanup performs one pruning pass relative to now.
func Cleanup(db *gorm.DB, now time.Time) {
	result := db.Where("timestamp < ?", now.Add(-systemLogRetention)).Delete(&models.SystemLog{})
	if result.Error != nil {
		slog.Warn("log cleanup failed", "error", result.Error)
	} else if result.RowsAffected > 0 {
		slog.Info("log cleanup completed", "deleted", result.RowsAffected)
	}

	result = db.Where("expires_at < ?", now.Add(-otpRetention)).Delete(&models.OTPCode{})
	if result.Error != nil {
		slog.Warn("otp cleanup failed", "error", result.Error)
	} else if result.RowsAffected > 0 {
		slog.Info("otp cleanup completed", "deleted", result.RowsAffected)
	}
}
