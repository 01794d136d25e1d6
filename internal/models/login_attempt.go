package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoginAttempt is an append-only record of one authentication attempt.
type LoginAttempt struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email         string    `gorm:"size:255;not null;index:idx_login_attempts_email_time,priority:1" json:"email"`
	IPAddress     string    `gorm:"size:64" json:"ip_address"`
	Success       bool      `gorm:"not null;default:false" json:"success"`
	FailureReason string    `gorm:"size:255" json:"failure_reason"`
	CreatedAt     time.Time `gorm:"not null;index:idx_login_attempts_email_time,priority:2" json:"created_at"`
}

func (a *LoginAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
