package services

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package wraps exactly one of
// them, so callers can branch with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate limited")
	ErrNotFound     = errors.New("not found")
)

var (
	ErrInvalidEmail       = fmt.Errorf("%w: invalid email address", ErrValidation)
	ErrWeakPassword       = fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", ErrValidation)
	ErrUnknownPlatform    = fmt.Errorf("%w: unknown platform", ErrValidation)
	ErrUnknownProvider    = fmt.Errorf("%w: unsupported oauth provider", ErrValidation)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	ErrInvalidOTP         = fmt.Errorf("%w: invalid or expired code", ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	ErrAccountDisabled    = fmt.Errorf("%w: account is deactivated", ErrForbidden)
	ErrInsufficientRole   = fmt.Errorf("%w: insufficient role", ErrForbidden)
	ErrIdentityConflict   = fmt.Errorf("%w: provider account is linked to another user", ErrForbidden)
	ErrUnverifiedLink     = fmt.Errorf("%w: provider email is not verified, sign in another way to link it", ErrForbidden)
	ErrAccountLocked      = fmt.Errorf("%w: too many failed attempts, try again later", ErrRateLimited)
	ErrUserNotFound       = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrIdentityNotFound   = fmt.Errorf("%w: identity not linked", ErrNotFound)
	ErrCredentialNotFound = fmt.Errorf("%w: credential not found", ErrNotFound)
)

const (
	minPasswordLength = 8
	maxNameLength     = 100
	maxPhoneLength    = 20
)
