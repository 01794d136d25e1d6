package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/federation"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/models"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NormalizeEmail lower-cases and trims an address. It is the only form of an
// email stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	if email == "" || len(email) > 255 {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return ErrInvalidEmail
	}
	return nil
}

// NewUser carries the fields a user can be created with.
type NewUser struct {
	Email        string
	PasswordHash *string
	FirstName    *string
	LastName     *string
	Phone        *string
}

type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// IdentityStore owns users and their federated identities.
type IdentityStore struct {
	db       *gorm.DB
	cipher   *security.Cipher
	elevated map[string]struct{}
}

func NewIdentityStore(db *gorm.DB, cipher *security.Cipher, elevatedEmails []string) *IdentityStore {
	set := make(map[string]struct{}, len(elevatedEmails))
	for _, e := range elevatedEmails {
		set[NormalizeEmail(e)] = struct{}{}
	}
	return &IdentityStore{db: db, cipher: cipher, elevated: set}
}

func (s *IdentityStore) roleFor(email string) string {
	if _, ok := s.elevated[email]; ok {
		return models.RoleElevated
	}
	return models.RoleStandard
}

func (s *IdentityStore) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	return s.createUser(s.db.WithContext(ctx), in)
}

func (s *IdentityStore) newUserRow(in NewUser) models.User {
	user := models.User{
		Email:        NormalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		IsActive:     true,
	}
	user.Role = s.roleFor(user.Email)
	return user
}

func (s *IdentityStore) createUser(tx *gorm.DB, in NewUser) (*models.User, error) {
	user := s.newUserRow(in)

	if err := tx.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		if exists, lookupErr := emailExists(tx, user.Email); lookupErr == nil && exists {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

func emailExists(tx *gorm.DB, email string) (bool, error) {
	var count int64
	err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (s *IdentityStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return findUser(s.db.WithContext(ctx), "email = ?", NormalizeEmail(email))
}

func (s *IdentityStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return findUser(s.db.WithContext(ctx), "id = ?", id)
}

func findUser(tx *gorm.DB, query string, arg any) (*models.User, error) {
	var user models.User
	if err := tx.Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// FindOrCreateByEmail returns the user for email, creating a password-less
// account when none exists. created reports which happened.
func (s *IdentityStore) FindOrCreateByEmail(ctx context.Context, in NewUser) (*models.User, bool, error) {
	return s.findOrCreate(s.db.WithContext(ctx), in)
}

func (s *IdentityStore) findOrCreate(tx *gorm.DB, in NewUser) (*models.User, bool, error) {
	user, err := findUser(tx, "email = ?", NormalizeEmail(in.Email))
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}
	return s.insertOrFind(tx, in)
}

// insertOrFind inserts the user unless the email already exists, in which
// case the existing row is returned. ON CONFLICT DO NOTHING keeps a lost race
// from aborting the caller's transaction.
func (s *IdentityStore) insertOrFind(tx *gorm.DB, in NewUser) (*models.User, bool, error) {
	row := s.newUserRow(in)
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		user, err := findUser(tx, "email = ?", row.Email)
		return user, false, err
	}
	return &row, true, nil
}

// SetActive flips the activation flag. A deactivated user keeps all rows.
func (s *IdentityStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.User, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]any{"is_active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update user status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *IdentityStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]any{"password_hash": hash, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	return nil
}

// UpdateProfile applies the non-nil fields. An empty string clears a field.
func (s *IdentityStore) UpdateProfile(ctx context.Context, id uuid.UUID, in ProfileUpdate) (*models.User, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	for col, v := range map[string]*string{"first_name": in.FirstName, "last_name": in.LastName, "phone": in.Phone} {
		if v == nil {
			continue
		}
		if trimmed := strings.TrimSpace(*v); trimmed != "" {
			updates[col] = trimmed
		} else {
			updates[col] = nil
		}
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *IdentityStore) ListUsers(ctx context.Context, limit, offset int) ([]models.User, int64, error) {
	var (
		users []models.User
		total int64
	)
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}
	if err := db.Order("created_at ASC").Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// LinkFederatedIdentity resolves the user for a verified provider profile and
// upserts the identity row in one transaction. A deactivated user is refused
// before anything is written.
func (s *IdentityStore) LinkFederatedIdentity(ctx context.Context, res *federation.Result) (*models.User, bool, error) {
	access, err := s.cipher.Encrypt(res.Tokens.AccessToken)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	var refresh string
	if res.Tokens.RefreshToken != "" {
		if refresh, err = s.cipher.Encrypt(res.Tokens.RefreshToken); err != nil {
			return nil, false, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}
	var expiresAt *time.Time
	if !res.Tokens.Expiry.IsZero() {
		t := res.Tokens.Expiry.UTC()
		expiresAt = &t
	}

	var (
		user    *models.User
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, created, err = s.findOrCreate(tx, NewUser{
			Email:     res.Profile.Email,
			FirstName: optional(clip(res.Profile.FirstName, maxNameLength)),
			LastName:  optional(clip(res.Profile.LastName, maxNameLength)),
		})
		if err != nil {
			return err
		}
		if !user.IsActive {
			return ErrAccountDisabled
		}

		var owner models.FederatedIdentity
		err = tx.Where("provider = ? AND provider_user_id = ?", string(res.Provider), res.Profile.ProviderUserID).
			First(&owner).Error
		switch {
		case err == nil && owner.UserID != user.ID:
			return ErrIdentityConflict
		case errors.Is(err, gorm.ErrRecordNotFound):
			// A new link to an account that already existed needs proof that
			// the provider owns the address.
			if !created && !res.Profile.EmailVerified {
				return ErrUnverifiedLink
			}
		case err != nil:
			return fmt.Errorf("failed to look up identity: %w", err)
		}

		identity := models.FederatedIdentity{
			UserID:         user.ID,
			Provider:       string(res.Provider),
			ProviderUserID: res.Profile.ProviderUserID,
			AccessToken:    access,
			RefreshToken:   refresh,
			TokenExpiresAt: expiresAt,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{"provider_user_id", "access_token", "refresh_token", "token_expires_at", "updated_at"}),
		}).Create(&identity).Error
		if err != nil {
			return fmt.Errorf("failed to link identity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (s *IdentityStore) UnlinkFederatedIdentity(ctx context.Context, userID uuid.UUID, provider federation.Provider) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, string(provider)).
		Delete(&models.FederatedIdentity{})
	if res.Error != nil {
		return fmt.Errorf("failed to unlink identity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func (s *IdentityStore) Identities(ctx context.Context, userID uuid.UUID) ([]models.FederatedIdentity, error) {
	var out []models.FederatedIdentity
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("provider").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load identities: %w", err)
	}
	return out, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// clip truncates provider-supplied text to n characters.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
