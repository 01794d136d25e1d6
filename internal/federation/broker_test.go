package federation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	tokens     *TokenSet
	profile    *Profile
	exchErr    error
	profileErr error
	block      bool
}

func (f *fakeAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.tokens, f.exchErr
}

func (f *fakeAdapter) FetchProfile(ctx context.Context, tokens *TokenSet) (*Profile, error) {
	return f.profile, f.profileErr
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" Google ")
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, p)

	_, err = ParseProvider("github")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestBrokerAuthenticate(t *testing.T) {
	good := &fakeAdapter{
		tokens:  &TokenSet{AccessToken: "at"},
		profile: &Profile{Email: "a@example.com", ProviderUserID: "sub-1"},
	}
	b := NewBroker(time.Second).Register(ProviderGoogle, good)

	res, err := b.Authenticate(context.Background(), ProviderGoogle, "code", "https://app/cb")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", res.Profile.ProviderUserID)
	assert.Equal(t, ProviderGoogle, res.Provider)
}

func TestBrokerNormalisesEmail(t *testing.T) {
	a := &fakeAdapter{
		tokens:  &TokenSet{AccessToken: "at"},
		profile: &Profile{Email: "  Mixed@Example.COM ", ProviderUserID: "sub-1"},
	}
	res, err := NewBroker(time.Second).Register(ProviderGoogle, a).
		Authenticate(context.Background(), ProviderGoogle, "code", "")
	require.NoError(t, err)
	assert.Equal(t, "mixed@example.com", res.Profile.Email)
}

func TestBrokerFailureStages(t *testing.T) {
	cases := []struct {
		name    string
		adapter *fakeAdapter
		code    string
		stage   Stage
		target  error
	}{
		{"empty code", &fakeAdapter{}, "", StageTokenExchange, nil},
		{"exchange error", &fakeAdapter{exchErr: errors.New("bad code")}, "c", StageTokenExchange, nil},
		{"no access token", &fakeAdapter{tokens: &TokenSet{}}, "c", StageTokenExchange, nil},
		{"profile error", &fakeAdapter{tokens: &TokenSet{AccessToken: "at"}, profileErr: errors.New("503")}, "c", StageProfileFetch, nil},
		{"missing email", &fakeAdapter{tokens: &TokenSet{AccessToken: "at"}, profile: &Profile{ProviderUserID: "x"}}, "c", StageProfileValidation, ErrMissingEmail},
		{"missing subject", &fakeAdapter{tokens: &TokenSet{AccessToken: "at"}, profile: &Profile{Email: "a@example.com"}}, "c", StageProfileValidation, ErrMissingSubject},
		{"malformed email", &fakeAdapter{tokens: &TokenSet{AccessToken: "at"}, profile: &Profile{Email: "not an email", ProviderUserID: "x"}}, "c", StageProfileValidation, ErrInvalidEmail},
		{"email without dotted domain", &fakeAdapter{tokens: &TokenSet{AccessToken: "at"}, profile: &Profile{Email: "root@localhost", ProviderUserID: "x"}}, "c", StageProfileValidation, ErrInvalidEmail},
		{"display-name address", &fakeAdapter{tokens: &TokenSet{AccessToken: "at"}, profile: &Profile{Email: "Eve <eve@example.com>", ProviderUserID: "x"}}, "c", StageProfileValidation, ErrInvalidEmail},
		{"unverified email", &fakeAdapter{tokens: &TokenSet{AccessToken: "at"}, profileErr: ErrUnverifiedEmail}, "c", StageProfileValidation, ErrUnverifiedEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBroker(time.Second).Register(ProviderMicrosoft, tc.adapter)
			res, err := b.Authenticate(context.Background(), ProviderMicrosoft, tc.code, "")
			require.Error(t, err)
			assert.Nil(t, res)

			var fe *Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.stage, fe.Stage)
			assert.Equal(t, ProviderMicrosoft, fe.Provider)
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			}
		})
	}
}

func TestBrokerUnconfiguredProvider(t *testing.T) {
	b := NewBroker(time.Second)
	_, err := b.Authenticate(context.Background(), ProviderApple, "c", "")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
	assert.Empty(t, b.Enabled())
}

func TestBrokerTimeout(t *testing.T) {
	b := NewBroker(20*time.Millisecond).Register(ProviderGoogle, &fakeAdapter{block: true})
	_, err := b.Authenticate(context.Background(), ProviderGoogle, "c", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
