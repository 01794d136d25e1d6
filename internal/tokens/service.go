package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind separates access tokens from refresh tokens. A token of one kind is
// never accepted where the other is expected.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims is the payload shared by both token kinds.
type Claims struct {
	Role string `json:"role"`
	Kind Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

type Subject struct {
	UserID uuid.UUID
	Role   string
}

// Service signs and verifies HS256 tokens. It is stateless apart from its
// immutable configuration.
type Service struct {
	cfg Config
	now func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token signing secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	return &Service{cfg: cfg, now: time.Now}, nil
}

// WithClock returns a copy of the service that reads time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Service) AccessTTL() time.Duration {
	return s.cfg.AccessTTL
}

func (s *Service) IssueAccess(sub Subject) (string, error) {
	return s.issue(sub, KindAccess, s.cfg.AccessTTL)
}

func (s *Service) IssueRefresh(sub Subject) (string, error) {
	return s.issue(sub, KindRefresh, s.cfg.RefreshTTL)
}

func (s *Service) issue(sub Subject, kind Kind, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Role: sub.Role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID.String(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks signature, issuer, expiry and kind.
func (s *Service) Verify(tokenString string, expected Kind) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, s.Keyfunc, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := CheckKind(claims, expected); err != nil {
		return nil, err
	}
	return claims, nil
}

// Keyfunc returns the HS256 signing secret. It is shared with the fiber JWT
// middleware so both paths accept exactly the same tokens.
func (s *Service) Keyfunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
	return s.cfg.Secret, nil
}

// CheckKind rejects claims of the wrong kind or without a usable subject.
func CheckKind(claims *Claims, expected Kind) error {
	if claims.Kind != expected {
		return fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, expected, claims.Kind)
	}
	if _, err := claims.UserID(); err != nil {
		return fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	return nil
}

// Accept applies the checks a generic JWT parser skips: issuer and kind.
func (s *Service) Accept(claims *Claims, expected Kind) error {
	if claims == nil {
		return ErrInvalidToken
	}
	if s.cfg.Issuer != "" && claims.Issuer != s.cfg.Issuer {
		return fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	return CheckKind(claims, expected)
}
