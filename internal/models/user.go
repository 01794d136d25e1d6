package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role values stored on User.Role.
const (
	RoleStandard = "standard"
	RoleElevated = "elevated"
)

// User is the identity aggregate. Email is the natural key shared by the
// password, one-time-code and federated login paths.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"not null;size:255;uniqueIndex" json:"email"`
	PasswordHash *string   `gorm:"size:255" json:"-"`
	FirstName    *string   `gorm:"size:100" json:"first_name"`
	LastName     *string   `gorm:"size:100" json:"last_name"`
	Phone        *string   `gorm:"size:20" json:"phone"`
	Role         string    `gorm:"size:20;not null;default:'standard'" json:"role"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	FederatedIdentities []FederatedIdentity  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	PlatformCredentials []PlatformCredential `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleStandard
	}
	return nil
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u *User) IsElevated() bool {
	return u.Role == RoleElevated
}
