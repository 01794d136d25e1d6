package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlatformCredential is a user's login for a third-party job platform.
// Username, Password and APIKey are ciphertext; plaintext only exists in the
// response to the automation collaborator.
type PlatformCredential struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_platform_cred_user_platform,priority:1" json:"user_id"`
	PlatformID string    `gorm:"size:50;not null;uniqueIndex:idx_platform_cred_user_platform,priority:2" json:"platform_id"`
	Username   string    `gorm:"type:text;not null" json:"-"`
	Password   string    `gorm:"type:text;not null" json:"-"`
	APIKey     *string   `gorm:"type:text" json:"-"`
	IsActive   bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (p *PlatformCredential) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
