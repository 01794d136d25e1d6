package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/audit"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/dto"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/federation"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/models"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/security"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/tokens"
	"github.com/google/uuid"
)

// RequestMeta is the caller context recorded with attempts and audit entries.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type SessionDeps struct {
	Store  *IdentityStore
	Hasher *security.PasswordHasher
	Tokens *tokens.Service
	OTP    *OTPService
	Ledger *AttemptLedger
	Broker *federation.Broker
	Mailer Mailer
	Audit  *audit.Recorder
}

// SessionService runs every login path and is the only place tokens are
// minted for a user.
type SessionService struct {
	store     *IdentityStore
	hasher    *security.PasswordHasher
	tokens    *tokens.Service
	otp       *OTPService
	ledger    *AttemptLedger
	broker    *federation.Broker
	mailer    Mailer
	audit     *audit.Recorder
	dummyHash string
}

func NewSessionService(d SessionDeps) (*SessionService, error) {
	if d.Store == nil || d.Hasher == nil || d.Tokens == nil || d.OTP == nil || d.Ledger == nil {
		return nil, errors.New("session service: missing dependency")
	}
	if d.Broker == nil {
		d.Broker = federation.NewBroker(0)
	}
	if d.Mailer == nil {
		d.Mailer = LogMailer{}
	}
	// Verified against when the user does not exist so that path costs the
	// same as a wrong password.
	dummy, err := d.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("session service: %w", err)
	}
	return &SessionService{
		store:     d.Store,
		hasher:    d.Hasher,
		tokens:    d.Tokens,
		otp:       d.OTP,
		ledger:    d.Ledger,
		broker:    d.Broker,
		mailer:    d.Mailer,
		audit:     d.Audit,
		dummyHash: dummy,
	}, nil
}

func (s *SessionService) Providers() []federation.Provider {
	return s.broker.Enabled()
}

func (s *SessionService) Register(ctx context.Context, req *dto.RegisterRequest, meta RequestMeta) (resp *dto.TokenResponse, err error) {
	defer func() { metrics.RecordAuth(metrics.MethodRegister, err) }()

	email := NormalizeEmail(req.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if err := validateProfileFields(req.FirstName, req.LastName, req.Phone); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user, err := s.store.CreateUser(ctx, NewUser{
		Email:        email,
		PasswordHash: &hash,
		FirstName:    optionalPtr(req.FirstName),
		LastName:     optionalPtr(req.LastName),
		Phone:        optionalPtr(req.Phone),
	})
	if err != nil {
		return nil, err
	}

	return s.complete(ctx, user, meta, audit.ActionRegister, nil)
}

// Login checks the lockout before touching the password so a locked email
// is refused even with the right password.
func (s *SessionService) Login(ctx context.Context, req *dto.LoginRequest, meta RequestMeta) (resp *dto.TokenResponse, err error) {
	defer func() { metrics.RecordAuth(metrics.MethodPassword, err) }()

	email := NormalizeEmail(req.Email)
	if err := s.checkLockout(ctx, email, meta); err != nil {
		return nil, err
	}

	user, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		s.hasher.Verify(req.Password, s.dummyHash)
		s.fail(ctx, email, nil, meta, ReasonUserNotFound)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.HasPassword() {
		s.hasher.Verify(req.Password, s.dummyHash)
		s.fail(ctx, email, &user.ID, meta, ReasonNoPassword)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(req.Password, *user.PasswordHash) {
		s.fail(ctx, email, &user.ID, meta, ReasonInvalidPassword)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.fail(ctx, email, &user.ID, meta, ReasonAccountDisabled)
		return nil, ErrAccountDisabled
	}

	if s.hasher.NeedsRehash(*user.PasswordHash) {
		if hash, err := s.hasher.Hash(req.Password); err == nil {
			if err := s.store.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
				slog.Error("password rehash failed", "user_id", user.ID.String(), "error", err)
			}
		}
	}

	return s.complete(ctx, user, meta, audit.ActionLogin, nil)
}

// RequestOTP supersedes any live code for the email and delivers a new one.
func (s *SessionService) RequestOTP(ctx context.Context, req *dto.OTPRequest, meta RequestMeta) (*dto.OTPRequestResponse, error) {
	email := NormalizeEmail(req.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	code, _, err := s.otp.Issue(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.mailer.SendOTP(ctx, email, code, s.otp.TTL()); err != nil {
		return nil, fmt.Errorf("failed to deliver code: %w", err)
	}

	var userID *uuid.UUID
	if user, err := s.store.FindByEmail(ctx, email); err == nil {
		userID = &user.ID
	}
	s.audit.Record(ctx, audit.Entry{
		UserID:    userID,
		Action:    audit.ActionOTPRequest,
		Resource:  "otp",
		Details:   map[string]any{"email": email},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	return &dto.OTPRequestResponse{
		Message:   "OTP sent to email",
		ExpiresIn: int(s.otp.TTL().Seconds()),
	}, nil
}

// VerifyOTP consumes the code and logs the user in, creating a password-less
// account on first use.
func (s *SessionService) VerifyOTP(ctx context.Context, req *dto.OTPVerifyRequest, meta RequestMeta) (resp *dto.TokenResponse, err error) {
	defer func() { metrics.RecordAuth(metrics.MethodOTP, err) }()

	email := NormalizeEmail(req.Email)
	if err := s.checkLockout(ctx, email, meta); err != nil {
		return nil, err
	}

	ok, err := s.otp.Verify(ctx, email, strings.TrimSpace(req.OTPCode))
	if err != nil {
		return nil, err
	}
	if !ok {
		s.fail(ctx, email, nil, meta, ReasonInvalidOTP)
		return nil, ErrInvalidOTP
	}

	user, created, err := s.store.FindOrCreateByEmail(ctx, NewUser{Email: email})
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		s.fail(ctx, email, &user.ID, meta, ReasonAccountDisabled)
		return nil, ErrAccountDisabled
	}

	return s.complete(ctx, user, meta, audit.ActionOTPLogin, map[string]any{"created": created})
}

// OAuthLogin completes a provider login. Nothing is written unless the
// provider returned a full profile and the resolved user is active.
func (s *SessionService) OAuthLogin(ctx context.Context, req *dto.OAuthLoginRequest, meta RequestMeta) (resp *dto.TokenResponse, err error) {
	defer func() { metrics.RecordAuth(metrics.MethodOAuth, err) }()

	provider, err := federation.ParseProvider(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}

	started := time.Now()
	result, err := s.broker.Authenticate(ctx, provider, req.AuthorizationCode, req.RedirectURI)
	metrics.ObserveFederation(string(provider), started, err)
	if err != nil {
		slog.Warn("federated login failed", "provider", string(provider), "error", err)
		return nil, err
	}

	email := NormalizeEmail(result.Profile.Email)
	user, created, err := s.store.LinkFederatedIdentity(ctx, result)
	if err != nil {
		if errors.Is(err, ErrAccountDisabled) {
			s.fail(ctx, email, nil, meta, ReasonAccountDisabled)
		}
		if errors.Is(err, ErrIdentityConflict) || errors.Is(err, ErrUnverifiedLink) {
			s.fail(ctx, email, nil, meta, ReasonFederation)
		}
		return nil, err
	}

	return s.complete(ctx, user, meta, audit.ActionOAuthLogin, map[string]any{
		"provider": string(provider),
		"created":  created,
	})
}

// Refresh trades a valid refresh token for a new pair. The user is reloaded
// so a deactivation takes effect on the next refresh.
func (s *SessionService) Refresh(ctx context.Context, req *dto.RefreshRequest, meta RequestMeta) (resp *dto.TokenResponse, err error) {
	defer func() { metrics.RecordAuth(metrics.MethodRefresh, err) }()

	claims, err := s.tokens.Verify(req.RefreshToken, tokens.KindRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	return s.complete(ctx, user, meta, audit.ActionTokenRefresh, nil)
}

// CurrentUser resolves the subject of an access token. A user that no
// longer exists is unauthorized; a deactivated one is forbidden.
func (s *SessionService) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

func (s *SessionService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *dto.UpdateProfileRequest, meta RequestMeta) (*dto.UserResponse, error) {
	if err := validateProfileFields(req.FirstName, req.LastName, req.Phone); err != nil {
		return nil, err
	}
	user, err := s.store.UpdateProfile(ctx, userID, ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		UserID:    &user.ID,
		Action:    audit.ActionProfileUpdate,
		Resource:  "user",
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	resp := ToUserResponse(user)
	return &resp, nil
}

// Logout only records the event; issued tokens stay valid until they expire.
func (s *SessionService) Logout(ctx context.Context, userID uuid.UUID, meta RequestMeta) {
	s.audit.Record(ctx, audit.Entry{
		UserID:    &userID,
		Action:    audit.ActionLogout,
		Resource:  "session",
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
}

func (s *SessionService) UnlinkIdentity(ctx context.Context, userID uuid.UUID, providerName string, meta RequestMeta) error {
	provider, err := federation.ParseProvider(providerName)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}
	if err := s.store.UnlinkFederatedIdentity(ctx, userID, provider); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		UserID:    &userID,
		Action:    audit.ActionOAuthUnlink,
		Resource:  "federated_identity",
		Details:   map[string]any{"provider": string(provider)},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	return nil
}

// RequireElevated is the role gate for administrative operations.
func (s *SessionService) RequireElevated(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsElevated() {
		return nil, ErrInsufficientRole
	}
	return user, nil
}

func (s *SessionService) SetUserStatus(ctx context.Context, actorID, targetID uuid.UUID, active bool, meta RequestMeta) (*dto.UserResponse, error) {
	user, err := s.store.SetActive(ctx, targetID, active)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		UserID:    &actorID,
		Action:    audit.ActionUserStatus,
		Resource:  "user",
		Details:   map[string]any{"target_user_id": targetID.String(), "is_active": active},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	resp := ToUserResponse(user)
	return &resp, nil
}

func (s *SessionService) ListUsers(ctx context.Context, limit, offset int) (*dto.UserListResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	users, total, err := s.store.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, ToUserResponse(&users[i]))
	}
	return &dto.UserListResponse{Users: out, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *SessionService) checkLockout(ctx context.Context, email string, meta RequestMeta) error {
	locked, err := s.ledger.IsLocked(ctx, email)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}
	metrics.RecordLockout()
	s.fail(ctx, email, nil, meta, ReasonAccountLocked)
	return ErrAccountLocked
}

// fail records a rejected attempt in the ledger and the audit trail. Ledger
// write errors are logged, not returned, so the caller still sees the
// authentication outcome.
func (s *SessionService) fail(ctx context.Context, email string, userID *uuid.UUID, meta RequestMeta, reason string) {
	if err := s.ledger.Record(ctx, email, meta.IPAddress, false, reason); err != nil {
		slog.Error("login attempt not recorded", "error", err)
	}
	s.audit.Record(ctx, audit.Entry{
		UserID:    userID,
		Action:    audit.ActionLoginFailed,
		Resource:  "session",
		Details:   map[string]any{"email": email, "reason": reason},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
}

func (s *SessionService) complete(ctx context.Context, user *models.User, meta RequestMeta, action string, details map[string]any) (*dto.TokenResponse, error) {
	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, user.Email, meta.IPAddress, true, ""); err != nil {
		slog.Error("login attempt not recorded", "error", err)
	}
	s.audit.Record(ctx, audit.Entry{
		UserID:    &user.ID,
		Action:    action,
		Resource:  "session",
		Details:   details,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	return pair, nil
}

func (s *SessionService) issuePair(user *models.User) (*dto.TokenResponse, error) {
	sub := tokens.Subject{UserID: user.ID, Role: user.Role}
	access, err := s.tokens.IssueAccess(sub)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(sub)
	if err != nil {
		return nil, err
	}
	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
		User:         ToUserResponse(user),
	}, nil
}

func ToUserResponse(u *models.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

func optionalPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return optional(*s)
}

// validateProfileFields bounds the optional profile columns to their
// storage sizes, counted in characters.
func validateProfileFields(firstName, lastName, phone *string) error {
	for _, f := range []struct {
		name  string
		value *string
		max   int
	}{
		{"first_name", firstName, maxNameLength},
		{"last_name", lastName, maxNameLength},
		{"phone", phone, maxPhoneLength},
	} {
		if f.value != nil && utf8.RuneCountInString(strings.TrimSpace(*f.value)) > f.max {
			return fmt.Errorf("%w: %s must be at most %d characters", ErrValidation, f.name, f.max)
		}
	}
	return nil
}
