package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OTPCode is a one-time login code. The partial unique index allows at most
// one unused code per email.
type OTPCode struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"size:255;not null;index;uniqueIndex:idx_otp_codes_live_email,where:used = false" json:"email"`
	Code      string    `gorm:"size:6;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	Used      bool      `gorm:"not null;default:false" json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

func (o *OTPCode) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
