package federation

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const microsoftGraphMeURL = "https://graph.microsoft.com/v1.0/me"

type MicrosoftConfig struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	TokenURL     string
	ProfileURL   string
	HTTPClient   *http.Client
}

type MicrosoftAdapter struct {
	exchanger  codeExchanger
	profileURL string
}

func NewMicrosoftAdapter(cfg MicrosoftConfig) (*MicrosoftAdapter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("microsoft client id and secret are required")
	}
	if cfg.Tenant == "" {
		cfg.Tenant = "common"
	}
	endpoint := microsoft.AzureADEndpoint(cfg.Tenant)
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	a := &MicrosoftAdapter{
		exchanger: newCodeExchanger(oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{"User.Read"},
		}, cfg.HTTPClient),
		profileURL: cfg.ProfileURL,
	}
	if a.profileURL == "" {
		a.profileURL = microsoftGraphMeURL
	}
	return a, nil
}

func (a *MicrosoftAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	return a.exchanger.exchange(ctx, code, redirectURI, oauth2.SetAuthURLParam("scope", "User.Read"))
}

type graphUser struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
}

// FetchProfile reads Graph /me. Graph's mail and userPrincipalName are set by
// the tenant and carry no ownership proof, so the profile is never marked
// verified.
func (a *MicrosoftAdapter) FetchProfile(ctx context.Context, tokens *TokenSet) (*Profile, error) {
	var me graphUser
	if err := a.exchanger.getJSON(ctx, a.profileURL, tokens.AccessToken, &me); err != nil {
		return nil, err
	}
	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	return &Profile{
		Email:          email,
		FirstName:      me.GivenName,
		LastName:       me.Surname,
		ProviderUserID: me.ID,
	}, nil
}
