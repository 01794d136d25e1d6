package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/models"
	"gorm.io/gorm"
)

const (
	otpMin   = 100000
	otpRange = 900000
)

// OTPService issues and consumes six-digit login codes. At most one unused
// code per email is live at any time.
type OTPService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewOTPService(db *gorm.DB, ttl time.Duration) *OTPService {
	return &OTPService{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// Issue supersedes every unused code for email and stores a fresh one.
func (s *OTPService) Issue(ctx context.Context, email string) (string, time.Time, error) {
	code, err := generateOTP()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			// Serialises concurrent issues for one email until commit.
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", email).Error; err != nil {
				return fmt.Errorf("failed to lock email: %w", err)
			}
		}
		if err := tx.Model(&models.OTPCode{}).
			Where("email = ? AND used = ?", email, false).
			Update("used", true).Error; err != nil {
			return fmt.Errorf("failed to supersede codes: %w", err)
		}
		row := models.OTPCode{Email: email, Code: code, ExpiresAt: expiresAt, CreatedAt: now}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to store code: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return code, expiresAt, nil
}

// Verify consumes the code. It reports true only for the caller whose
// conditional update flipped the row, so a code can succeed at most once.
func (s *OTPService) Verify(ctx context.Context, email, code string) (bool, error) {
	if len(code) != 6 {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.OTPCode{}).
		Where("email = ? AND code = ? AND used = ? AND expires_at > ?", email, code, false, s.now()).
		Update("used", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to verify code: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpRange))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}
