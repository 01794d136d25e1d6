package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Secret:     []byte(strings.Repeat("k", 32)),
		Issuer:     "identity-core-test",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return svc
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTestService(t)
	sub := Subject{UserID: uuid.New(), Role: "standard"}

	access, err := svc.IssueAccess(sub)
	require.NoError(t, err)
	claims, err := svc.Verify(access, KindAccess)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, sub.UserID, id)
	assert.Equal(t, "standard", claims.Role)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt.Time, 5*time.Second)

	refresh, err := svc.IssueRefresh(sub)
	require.NoError(t, err)
	claims, err = svc.Verify(refresh, KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, claims.Kind)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestCrossKindRejected(t *testing.T) {
	svc := newTestService(t)
	sub := Subject{UserID: uuid.New(), Role: "elevated"}

	access, err := svc.IssueAccess(sub)
	require.NoError(t, err)
	refresh, err := svc.IssueRefresh(sub)
	require.NoError(t, err)

	_, err = svc.Verify(access, KindRefresh)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify(refresh, KindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := newTestService(t)
	issuedAt := time.Now().Add(-time.Hour)
	past := svc.WithClock(func() time.Time { return issuedAt })

	access, err := past.IssueAccess(Subject{UserID: uuid.New(), Role: "standard"})
	require.NoError(t, err)

	_, err = past.Verify(access, KindAccess)
	require.NoError(t, err)

	_, err = svc.Verify(access, KindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestWrongSecretRejected(t *testing.T) {
	svc := newTestService(t)
	other, err := NewService(Config{
		Secret:     []byte(strings.Repeat("z", 32)),
		Issuer:     "identity-core-test",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)

	token, err := other.IssueAccess(Subject{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = svc.Verify(token, KindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestWrongIssuerRejected(t *testing.T) {
	svc := newTestService(t)
	other, err := NewService(Config{
		Secret:     []byte(strings.Repeat("k", 32)),
		Issuer:     "someone-else",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)

	token, err := other.IssueAccess(Subject{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = svc.Verify(token, KindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestUnsignedAndForeignAlgorithmsRejected(t *testing.T) {
	svc := newTestService(t)
	claims := Claims{
		Kind: KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    "identity-core-test",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Verify(none, KindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)
	_, err = svc.Verify(hs512, KindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMissingKindRejected(t *testing.T) {
	svc := newTestService(t)
	claims := jwt.MapClaims{
		"sub": uuid.NewString(),
		"iss": "identity-core-test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	_, err = svc.Verify(token, KindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewServiceRejectsShortSecret(t *testing.T) {
	_, err := NewService(Config{Secret: []byte("short"), AccessTTL: time.Minute, RefreshTTL: time.Hour})
	require.Error(t, err)
}

func TestAccept(t *testing.T) {
	svc := newTestService(t)
	uid := uuid.New()
	access, err := svc.IssueAccess(Subject{UserID: uid, Role: "standard"})
	require.NoError(t, err)

	claims, err := svc.Verify(access, KindAccess)
	require.NoError(t, err)
	require.NoError(t, svc.Accept(claims, KindAccess))
	require.ErrorIs(t, svc.Accept(claims, KindRefresh), ErrInvalidToken)

	claims.Issuer = "someone-else"
	require.ErrorIs(t, svc.Accept(claims, KindAccess), ErrInvalidToken)
	require.ErrorIs(t, svc.Accept(nil, KindAccess), ErrInvalidToken)
}
