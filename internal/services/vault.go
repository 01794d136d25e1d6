package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/dto"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/models"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/platforms"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Vault stores job platform credentials encrypted at rest and hands the
// plaintext back only through Decrypt.
type Vault struct {
	db        *gorm.DB
	cipher    *security.Cipher
	platforms *platforms.Registry
}

func NewVault(db *gorm.DB, cipher *security.Cipher, registry *platforms.Registry) *Vault {
	return &Vault{db: db, cipher: cipher, platforms: registry}
}

type CredentialInput struct {
	UserID     uuid.UUID
	PlatformID string
	Username   string
	Password   string
	APIKey     *string
}

// Save encrypts and upserts the credential. Saving again for the same user
// and platform overwrites the row and reactivates it.
func (v *Vault) Save(ctx context.Context, in CredentialInput) error {
	platformID := strings.ToLower(strings.TrimSpace(in.PlatformID))
	if !v.platforms.Exists(platformID) {
		return ErrUnknownPlatform
	}
	if strings.TrimSpace(in.Username) == "" || in.Password == "" {
		return fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	var user models.User
	if err := v.db.WithContext(ctx).Select("id").Where("id = ?", in.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	username, err := v.cipher.Encrypt(in.Username)
	if err != nil {
		return fmt.Errorf("failed to encrypt username: %w", err)
	}
	password, err := v.cipher.Encrypt(in.Password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}
	apiKey, err := v.cipher.EncryptOptional(in.APIKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt api key: %w", err)
	}

	cred := models.PlatformCredential{
		UserID:     in.UserID,
		PlatformID: platformID,
		Username:   username,
		Password:   password,
		APIKey:     apiKey,
		IsActive:   true,
	}
	err = v.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "platform_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "password", "api_key", "is_active", "updated_at"}),
	}).Create(&cred).Error
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Decrypt returns the active credential in plaintext. A stored value that no
// longer decrypts is reported as security.ErrDecryption, never as garbage.
func (v *Vault) Decrypt(ctx context.Context, userID uuid.UUID, platformID string) (*dto.DecryptedCredentialResponse, error) {
	platformID = strings.ToLower(strings.TrimSpace(platformID))

	var cred models.PlatformCredential
	err := v.db.WithContext(ctx).
		Where("user_id = ? AND platform_id = ? AND is_active = ?", userID, platformID, true).
		First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	username, err := v.cipher.Decrypt(cred.Username)
	if err != nil {
		return nil, err
	}
	password, err := v.cipher.Decrypt(cred.Password)
	if err != nil {
		return nil, err
	}
	var apiKey *string
	if cred.APIKey != nil {
		plain, err := v.cipher.Decrypt(*cred.APIKey)
		if err != nil {
			return nil, err
		}
		apiKey = &plain
	}

	return &dto.DecryptedCredentialResponse{
		UserID:     userID.String(),
		PlatformID: platformID,
		Username:   username,
		Password:   password,
		APIKey:     apiKey,
	}, nil
}

func (v *Vault) Deactivate(ctx context.Context, userID uuid.UUID, platformID string) error {
	res := v.db.WithContext(ctx).Model(&models.PlatformCredential{}).
		Where("user_id = ? AND platform_id = ? AND is_active = ?", userID, strings.ToLower(strings.TrimSpace(platformID)), true).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// List reports, per catalogue platform, whether the user has an active
// credential. No secret material is read.
func (v *Vault) List(ctx context.Context, userID uuid.UUID) ([]dto.PlatformStatus, error) {
	var active []string
	err := v.db.WithContext(ctx).Model(&models.PlatformCredential{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Pluck("platform_id", &active).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	has := make(map[string]bool, len(active))
	for _, id := range active {
		has[id] = true
	}

	catalogue := v.platforms.All()
	out := make([]dto.PlatformStatus, 0, len(catalogue))
	for _, p := range catalogue {
		out = append(out, dto.PlatformStatus{
			ID:             p.ID,
			Name:           p.Name,
			LoginURL:       p.LoginURL,
			HasCredentials: has[p.ID],
		})
	}
	return out, nil
}
