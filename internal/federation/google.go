package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// IDTokenValidator validates a Google id_token for the given audience.
type IDTokenValidator func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	// Overrides for tests; zero values use Google's endpoints.
	TokenURL    string
	UserInfoURL string
	HTTPClient  *http.Client
	Validator   IDTokenValidator
}

type GoogleAdapter struct {
	exchanger   codeExchanger
	clientID    string
	userInfoURL string
	validate    IDTokenValidator
}

func NewGoogleAdapter(cfg GoogleConfig) (*GoogleAdapter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("google client id and secret are required")
	}
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	a := &GoogleAdapter{
		exchanger: newCodeExchanger(oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		}, cfg.HTTPClient),
		clientID:    cfg.ClientID,
		userInfoURL: cfg.UserInfoURL,
		validate:    cfg.Validator,
	}
	if a.userInfoURL == "" {
		a.userInfoURL = googleUserInfoURL
	}
	if a.validate == nil {
		a.validate = idtoken.Validate
	}
	return a, nil
}

func (a *GoogleAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	return a.exchanger.exchange(ctx, code, redirectURI)
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// FetchProfile prefers the signed id_token and falls back to the userinfo
// endpoint when the token response carried none.
func (a *GoogleAdapter) FetchProfile(ctx context.Context, tokens *TokenSet) (*Profile, error) {
	if tokens.IDToken != "" {
		payload, err := a.validate(ctx, tokens.IDToken, a.clientID)
		if err != nil {
			return nil, fmt.Errorf("invalid id_token: %w", err)
		}
		if !claimTrue(payload.Claims["email_verified"]) {
			return nil, ErrUnverifiedEmail
		}
		email, _ := payload.Claims["email"].(string)
		given, _ := payload.Claims["given_name"].(string)
		family, _ := payload.Claims["family_name"].(string)
		return &Profile{
			Email:          email,
			EmailVerified:  true,
			FirstName:      given,
			LastName:       family,
			ProviderUserID: payload.Subject,
		}, nil
	}

	var info googleUserInfo
	if err := a.exchanger.getJSON(ctx, a.userInfoURL, tokens.AccessToken, &info); err != nil {
		return nil, err
	}
	if !info.VerifiedEmail {
		return nil, ErrUnverifiedEmail
	}
	return &Profile{
		Email:          info.Email,
		EmailVerified:  true,
		FirstName:      info.GivenName,
		LastName:       info.FamilyName,
		ProviderUserID: info.ID,
	}, nil
}

// claimTrue reads a boolean claim that some issuers encode as a string.
func claimTrue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}
