package federation

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2"
)

const (
	appleIssuer       = "https://appleid.apple.com"
	appleTokenURL     = "https://appleid.apple.com/auth/token"
	appleKeysURL      = "https://appleid.apple.com/auth/keys"
	appleSecretTTL    = 5 * time.Minute
	appleKeysCacheTTL = 24 * time.Hour
)

type AppleConfig struct {
	ClientID      string
	TeamID        string
	KeyID         string
	PrivateKeyPEM string
	TokenURL      string
	KeysURL       string
	HTTPClient    *http.Client
}

// AppleAdapter signs a short-lived ES256 client secret per exchange and reads
// the profile from the verified id_token.
type AppleAdapter struct {
	cfg        AppleConfig
	privateKey any
	exchanger  codeExchanger
	keys       *appleKeyCache
	now        func() time.Time
}

func NewAppleAdapter(cfg AppleConfig) (*AppleAdapter, error) {
	if cfg.ClientID == "" || cfg.TeamID == "" || cfg.KeyID == "" {
		return nil, errors.New("apple client id, team id and key id are required")
	}
	priv, err := parseApplePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = appleTokenURL
	}
	if cfg.KeysURL == "" {
		cfg.KeysURL = appleKeysURL
	}

	ex := newCodeExchanger(oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}, cfg.HTTPClient)

	return &AppleAdapter{
		cfg:        cfg,
		privateKey: priv,
		exchanger:  ex,
		keys:       newAppleKeyCache(cfg.KeysURL, ex.httpClient, appleKeysCacheTTL),
		now:        time.Now,
	}, nil
}

func parseApplePrivateKey(pemText string) (any, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("invalid PEM for apple private key")
	}
	if k, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	k, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse apple private key: %w", err)
	}
	return k, nil
}

func (a *AppleAdapter) clientSecret() (string, error) {
	now := a.now()
	tok, err := jwt.NewBuilder().
		Issuer(a.cfg.TeamID).
		IssuedAt(now).
		Expiration(now.Add(appleSecretTTL)).
		Audience([]string{appleIssuer}).
		Subject(a.cfg.ClientID).
		Build()
	if err != nil {
		return "", err
	}

	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.KeyIDKey, a.cfg.KeyID); err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256, a.privateKey, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", fmt.Errorf("sign client secret: %w", err)
	}
	return string(signed), nil
}

func (a *AppleAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	secret, err := a.clientSecret()
	if err != nil {
		return nil, err
	}
	return a.exchanger.exchange(ctx, code, redirectURI, oauth2.SetAuthURLParam("client_secret", secret))
}

func (a *AppleAdapter) FetchProfile(ctx context.Context, tokens *TokenSet) (*Profile, error) {
	if tokens.IDToken == "" {
		return nil, errors.New("token response did not include an id_token")
	}
	keyset, err := a.keys.Get(ctx)
	if err != nil {
		return nil, err
	}

	t, err := jwt.ParseString(tokens.IDToken,
		jwt.WithKeySet(keyset, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithIssuer(appleIssuer),
		jwt.WithAudience(a.cfg.ClientID),
		jwt.WithClock(jwt.ClockFunc(a.now)),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid id_token: %w", err)
	}

	email := ""
	if v, ok := t.Get("email"); ok {
		email, _ = v.(string)
	}
	verified := false
	if v, ok := t.Get("email_verified"); ok {
		verified = claimTrue(v)
	}
	return &Profile{
		Email:          email,
		EmailVerified:  verified,
		ProviderUserID: t.Subject(),
	}, nil
}
