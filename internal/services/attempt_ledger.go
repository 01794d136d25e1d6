package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/models"
	"gorm.io/gorm"
)

// LockoutPolicy locks an email once Threshold failures fall inside the
// trailing Window. The lock lifts by itself as failures age out.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
}

// Failure reasons stored on LoginAttempt rows.
const (
	ReasonInvalidPassword = "invalid_password"
	ReasonUserNotFound    = "user_not_found"
	ReasonNoPassword      = "no_password_set"
	ReasonInvalidOTP      = "invalid_otp"
	ReasonAccountLocked   = "account_locked"
	ReasonAccountDisabled = "account_deactivated"
	ReasonFederation      = "federation_failed"
)

type AttemptLedger struct {
	db     *gorm.DB
	policy LockoutPolicy
	now    func() time.Time
}

func NewAttemptLedger(db *gorm.DB, policy LockoutPolicy) *AttemptLedger {
	return &AttemptLedger{db: db, policy: policy, now: func() time.Time { return time.Now().UTC() }}
}

func (l *AttemptLedger) Record(ctx context.Context, email, ip string, success bool, reason string) error {
	row := models.LoginAttempt{
		Email:         email,
		IPAddress:     ip,
		Success:       success,
		FailureReason: reason,
		CreatedAt:     l.now(),
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

func (l *AttemptLedger) FailureCount(ctx context.Context, email string) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.LoginAttempt{}).
		Where("email = ? AND success = ? AND created_at >= ?", email, false, l.now().Add(-l.policy.Window)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return count, nil
}

func (l *AttemptLedger) IsLocked(ctx context.Context, email string) (bool, error) {
	count, err := l.FailureCount(ctx, email)
	if err != nil {
		return false, err
	}
	return count >= int64(l.policy.Threshold), nil
}
