package federation

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Provider is the closed set of supported identity providers.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
	ProviderApple     Provider = "apple"
)

var ErrUnsupportedProvider = errors.New("unsupported oauth provider")

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGoogle, ProviderMicrosoft, ProviderApple:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
	}
}

// Stage names the step of a federated login that failed.
type Stage string

const (
	StageConfiguration     Stage = "configuration"
	StageTokenExchange     Stage = "token_exchange"
	StageProfileFetch      Stage = "profile_fetch"
	StageProfileValidation Stage = "profile_validation"
	StageLink              Stage = "link"
)

var (
	ErrMissingEmail   = errors.New("provider did not return an email address")
	ErrMissingSubject = errors.New("provider did not return a user id")
	ErrInvalidEmail   = errors.New("provider returned a malformed email address")
	// ErrUnverifiedEmail is returned by adapters whose provider reports the
	// address as unverified.
	ErrUnverifiedEmail = errors.New("provider has not verified the email address")
)

// Error is the single failure type of a federated login.
type Error struct {
	Provider Provider
	Stage    Stage
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s login failed at %s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TokenSet is what a provider returns for an authorization code.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	Expiry       time.Time
}

// Profile is a provider profile normalised to the fields the core needs.
// EmailVerified is true only when the provider asserts ownership of Email.
type Profile struct {
	Email          string
	EmailVerified  bool
	FirstName      string
	LastName       string
	ProviderUserID string
}

// Adapter is implemented once per provider.
type Adapter interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error)
	FetchProfile(ctx context.Context, tokens *TokenSet) (*Profile, error)
}

// Result is a completed exchange: the provider has vouched for Profile.
type Result struct {
	Provider Provider
	Tokens   *TokenSet
	Profile  *Profile
}

// Broker selects the adapter for a provider and runs the exchange under a
// bounded timeout.
type Broker struct {
	adapters map[Provider]Adapter
	timeout  time.Duration
}

func NewBroker(timeout time.Duration) *Broker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Broker{adapters: make(map[Provider]Adapter), timeout: timeout}
}

// Register installs the adapter for p. Providers without an adapter are
// rejected at login time.
func (b *Broker) Register(p Provider, a Adapter) *Broker {
	b.adapters[p] = a
	return b
}

func (b *Broker) Enabled() []Provider {
	out := make([]Provider, 0, len(b.adapters))
	for _, p := range []Provider{ProviderGoogle, ProviderMicrosoft, ProviderApple} {
		if _, ok := b.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Authenticate exchanges code and fetches the profile. It either returns a
// complete Result or an *Error; there is no partial success.
func (b *Broker) Authenticate(ctx context.Context, p Provider, code, redirectURI string) (*Result, error) {
	adapter, ok := b.adapters[p]
	if !ok {
		return nil, &Error{Provider: p, Stage: StageConfiguration, Err: ErrUnsupportedProvider}
	}
	if strings.TrimSpace(code) == "" {
		return nil, &Error{Provider: p, Stage: StageTokenExchange, Err: errors.New("authorization code is required")}
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	tokens, err := adapter.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, &Error{Provider: p, Stage: StageTokenExchange, Err: err}
	}
	if tokens == nil || tokens.AccessToken == "" {
		return nil, &Error{Provider: p, Stage: StageTokenExchange, Err: errors.New("empty access token")}
	}

	profile, err := adapter.FetchProfile(ctx, tokens)
	if errors.Is(err, ErrUnverifiedEmail) {
		return nil, &Error{Provider: p, Stage: StageProfileValidation, Err: err}
	}
	if err != nil {
		return nil, &Error{Provider: p, Stage: StageProfileFetch, Err: err}
	}
	if profile == nil || strings.TrimSpace(profile.Email) == "" {
		return nil, &Error{Provider: p, Stage: StageProfileValidation, Err: ErrMissingEmail}
	}
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	if !wellFormed(profile.Email) {
		return nil, &Error{Provider: p, Stage: StageProfileValidation, Err: ErrInvalidEmail}
	}
	if strings.TrimSpace(profile.ProviderUserID) == "" {
		return nil, &Error{Provider: p, Stage: StageProfileValidation, Err: ErrMissingSubject}
	}

	return &Result{Provider: p, Tokens: tokens, Profile: profile}, nil
}

// wellFormed accepts a bare addr-spec with a dotted domain, the same shape
// accepted for password and one-time-code accounts.
func wellFormed(email string) bool {
	if len(email) > 255 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at:], ".")
}
