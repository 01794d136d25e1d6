package services

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/audit"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/federation"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/platforms"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/security"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/testutil"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/tokens"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *captureMailer) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	m.codes[email] = code
	return nil
}

func (m *captureMailer) last(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

// stubAdapter returns a fixed profile for any code.
type stubAdapter struct {
	profile *federation.Profile
}

func (s *stubAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*federation.TokenSet, error) {
	return &federation.TokenSet{AccessToken: "provider-at-" + code, RefreshToken: "provider-rt", Expiry: time.Now().Add(time.Hour)}, nil
}

func (s *stubAdapter) FetchProfile(ctx context.Context, tokens *federation.TokenSet) (*federation.Profile, error) {
	p := *s.profile
	return &p, nil
}

type testEnv struct {
	db       *gorm.DB
	cipher   *security.Cipher
	hasher   *security.PasswordHasher
	tokens   *tokens.Service
	otp      *OTPService
	ledger   *AttemptLedger
	store    *IdentityStore
	vault    *Vault
	google   *stubAdapter
	mailer   *captureMailer
	sessions *SessionService
}

func newTestEnv(t *testing.T, adminEmails ...string) *testEnv {
	t.Helper()
	env := &testEnv{db: testutil.NewDB(t), mailer: &captureMailer{}}

	var err error
	env.cipher, err = security.NewCipher(testKey)
	require.NoError(t, err)
	env.hasher, err = security.NewPasswordHasher(security.Argon2Params{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	env.tokens, err = tokens.NewService(tokens.Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "identity-core",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	env.otp = NewOTPService(env.db, 10*time.Minute)
	env.ledger = NewAttemptLedger(env.db, LockoutPolicy{Threshold: 5, Window: 30 * time.Minute})
	env.store = NewIdentityStore(env.db, env.cipher, adminEmails)
	env.vault = NewVault(env.db, env.cipher, platforms.NewRegistry(platforms.Defaults()...))
	env.google = &stubAdapter{profile: &federation.Profile{Email: "fed@example.com", EmailVerified: true, FirstName: "Fed", ProviderUserID: "g-1"}}

	broker := federation.NewBroker(time.Second).Register(federation.ProviderGoogle, env.google)
	env.sessions, err = NewSessionService(SessionDeps{
		Store:  env.store,
		Hasher: env.hasher,
		Tokens: env.tokens,
		OTP:    env.otp,
		Ledger: env.ledger,
		Broker: broker,
		Mailer: env.mailer,
		Audit:  audit.NewRecorder(audit.NewGormSink(env.db)),
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}
