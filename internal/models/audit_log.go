package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an append-only security event. UserID is a plain reference, not
// a foreign key, so entries outlive the user they describe.
type AuditLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"`
	Action    string         `gorm:"size:100;not null;index" json:"action"`
	Resource  string         `gorm:"size:100" json:"resource"`
	Details   datatypes.JSON `gorm:"type:jsonb" json:"details"`
	IPAddress string         `gorm:"size:64" json:"ip_address"`
	UserAgent string         `gorm:"type:text" json:"user_agent"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
