package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FederatedIdentity links a user to one account at an external identity
// provider. Token columns hold ciphertext produced by security.Cipher.
type FederatedIdentity struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_fed_user_provider,priority:1" json:"user_id"`
	Provider       string     `gorm:"size:50;not null;uniqueIndex:idx_fed_user_provider,priority:2;uniqueIndex:idx_fed_provider_subject,priority:1" json:"provider"`
	ProviderUserID string     `gorm:"size:255;not null;uniqueIndex:idx_fed_provider_subject,priority:2" json:"-"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (f *FederatedIdentity) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
