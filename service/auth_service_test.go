// file: service/auth_service_test.go

package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/themidix/GlucoCheckWebAPIv4/model"
	"github.com/themidix/GlucoCheckWebAPIv4/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	resetURL      = "http://localhost:3000/reset-password"
	alicePassword = "Str0ng!Pass"
)

type sentMail struct {
	to   string
	link string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, link: link})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail was sent")
	return m.sent[len(m.sent)-1]
}

type slowHasher struct {
	PasswordHasher
	delay time.Duration
}

func (h slowHasher) Hash(password string) (string, error) {
	time.Sleep(h.delay)
	return h.PasswordHasher.Hash(password)
}

type countingHasher struct {
	PasswordHasher
	verifies int
}

func (h *countingHasher) Verify(password, hash string) bool {
	h.verifies++
	return h.PasswordHasher.Verify(password, hash)
}

// failingRegistry fails Revoke for one token and delegates everything else.
type failingRegistry struct {
	RevocationRegistry
	token string
	err   error
}

func (r *failingRegistry) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if token == r.token {
		return r.err
	}
	return r.RevocationRegistry.Revoke(ctx, token, expiresAt)
}

type authFixture struct {
	svc    *AuthService
	users  *repository.MemoryUserRepository
	clock  *fakeClock
	mailer *recordingMailer
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		ResetTTL:      30 * time.Minute,
		ResetURL:      resetURL,
	}
}

func newAuthFixture(t *testing.T, mutate ...func(*AuthConfig)) *authFixture {
	t.Helper()
	cfg := testAuthConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	clock := newFakeClock()
	users := repository.NewMemoryUserRepository()
	m := &recordingMailer{}
	svc := NewAuthService(users, NewMemoryRevocationRegistry(clock.Now), m, NewBcryptHasher(bcrypt.MinCost), NewTokenCodec(clock.Now), cfg)
	return &authFixture{svc: svc, users: users, clock: clock, mailer: m}
}

func (f *authFixture) registerAlice(t *testing.T) int {
	t.Helper()
	id, err := f.svc.Register(context.Background(), RegisterInput{
		FirstName: "Alice",
		LastName:  "Liddell",
		Email:     "alice@example.com",
		Password:  alicePassword,
	})
	require.NoError(t, err)
	return id
}

func (f *authFixture) loginAlice(t *testing.T) *LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), "alice@example.com", alicePassword)
	require.NoError(t, err)
	return res
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	id := f.registerAlice(t)
	assert.Equal(t, 1, id)

	stored, err := f.users.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, alicePassword, stored.Password)
	assert.Equal(t, string(model.RoleUser), stored.Role)

	tests := []struct {
		name    string
		in      RegisterInput
		wantErr error
	}{
		{"duplicate email", RegisterInput{"Alice", "Again", "alice@example.com", alicePassword}, ErrEmailTaken},
		{"missing first name", RegisterInput{"", "Liddell", "bob@example.com", alicePassword}, ErrMissingFields},
		{"blank last name", RegisterInput{"Bob", "   ", "bob@example.com", alicePassword}, ErrMissingFields},
		{"invalid email", RegisterInput{"Bob", "Builder", "bob-at-example.com", alicePassword}, ErrInvalidEmail},
		{"weak password", RegisterInput{"Bob", "Builder", "bob@example.com", "password"}, ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	users, _ := f.users.GetAllUsers(ctx)
	assert.Len(t, users, 1)
}

func TestAuthService_Register_Concurrent(t *testing.T) {
	f := newAuthFixture(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), RegisterInput{"Race", "Condition", "race@example.com", alicePassword})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, taken int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrEmailTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, taken)
}

func TestAuthService_Register_DuplicateKeyFromStore(t *testing.T) {
	repo := new(mockUserRepo)
	repo.On("GetUserByEmail", "alice@example.com").Return(nil, sql.ErrNoRows).Once()
	repo.On("CreateUser", mock.AnythingOfType("*model.User")).Return(repository.ErrDuplicateKey).Once()

	svc := NewAuthService(repo, NewMemoryRevocationRegistry(nil), &recordingMailer{}, NewBcryptHasher(bcrypt.MinCost), nil, testAuthConfig())
	_, err := svc.Register(context.Background(), RegisterInput{"Alice", "Liddell", "alice@example.com", alicePassword})

	assert.ErrorIs(t, err, ErrEmailTaken)
	repo.AssertExpectations(t)
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	id := f.registerAlice(t)

	res := f.loginAlice(t)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.NotEqual(t, res.AccessToken, res.RefreshToken)
	assert.Equal(t, model.PublicUser{ID: id, Email: "alice@example.com", FirstName: "Alice", LastName: "Liddell"}, res.User)

	_, errWrong := f.svc.Login(ctx, "alice@example.com", "Wr0ng!Pass")
	_, errUnknown := f.svc.Login(ctx, "nobody@example.com", alicePassword)
	assert.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())

	_, err := f.svc.Login(ctx, "", alicePassword)
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = f.svc.Login(ctx, "not-an-email", alicePassword)
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestAuthService_Login_UnknownEmailCostsAHashCompare(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.registerAlice(t)
	counter := &countingHasher{PasswordHasher: f.svc.hasher}
	f.svc.hasher = counter

	_, err := f.svc.Login(ctx, "nobody@example.com", alicePassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, counter.verifies)

	_, err = f.svc.Login(ctx, "alice@example.com", "Wr0ng!Pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 2, counter.verifies)

	// the decoy never matches, whatever the password
	_, err = f.svc.Login(ctx, "nobody@example.com", "")
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.False(t, f.svc.hasher.Verify("decoy-", f.svc.decoyHash()))
}

func TestAuthService_Authenticate(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	id := f.registerAlice(t)
	res := f.loginAlice(t)

	identity, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, identity.User.ID)
	assert.Equal(t, res.AccessToken, identity.Token)
	assert.True(t, f.clock.Now().Add(time.Hour).Equal(identity.ExpiresAt))

	t.Run("refresh token is not an access token", func(t *testing.T) {
		_, err := f.svc.Authenticate(ctx, res.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.svc.Authenticate(ctx, "not.a.token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := f.svc.Authenticate(ctx, "")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("user removed", func(t *testing.T) {
		ghost, _, err := NewTokenCodec(f.clock.Now).Issue(99, f.svc.cfg.AccessSecret, time.Hour)
		require.NoError(t, err)
		_, err = f.svc.Authenticate(ctx, ghost)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("valid until ttl then expired", func(t *testing.T) {
		f.clock.Advance(59 * time.Minute)
		_, err := f.svc.Authenticate(ctx, res.AccessToken)
		assert.NoError(t, err)

		f.clock.Advance(2 * time.Minute)
		_, err = f.svc.Authenticate(ctx, res.AccessToken)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})
}

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes the access token", func(t *testing.T) {
		f := newAuthFixture(t)
		f.registerAlice(t)
		res := f.loginAlice(t)

		identity, err := f.svc.Authenticate(ctx, res.AccessToken)
		require.NoError(t, err)
		require.NoError(t, f.svc.Logout(ctx, identity, ""))

		_, err = f.svc.Authenticate(ctx, res.AccessToken)
		assert.ErrorIs(t, err, ErrTokenRevoked)

		// refresh token survives a plain logout
		_, err = f.svc.Refresh(ctx, res.RefreshToken)
		assert.NoError(t, err)

		other := f.loginAlice(t)
		_, err = f.svc.Authenticate(ctx, other.AccessToken)
		assert.NoError(t, err, "other sessions stay valid")
	})

	t.Run("revokes the supplied refresh token", func(t *testing.T) {
		f := newAuthFixture(t)
		f.registerAlice(t)
		res := f.loginAlice(t)

		identity, err := f.svc.Authenticate(ctx, res.AccessToken)
		require.NoError(t, err)
		require.NoError(t, f.svc.Logout(ctx, identity, res.RefreshToken))

		_, err = f.svc.Refresh(ctx, res.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("refresh revocation failure leaves the session intact", func(t *testing.T) {
		f := newAuthFixture(t)
		f.registerAlice(t)
		res := f.loginAlice(t)

		identity, err := f.svc.Authenticate(ctx, res.AccessToken)
		require.NoError(t, err)

		storeErr := errors.New("redis unavailable")
		f.svc.revoked = &failingRegistry{RevocationRegistry: f.svc.revoked, token: res.RefreshToken, err: storeErr}
		assert.ErrorIs(t, f.svc.Logout(ctx, identity, res.RefreshToken), storeErr)

		_, err = f.svc.Authenticate(ctx, res.AccessToken)
		assert.NoError(t, err, "access token must not be revoked when logout fails")
	})
}

func TestAuthService_Refresh(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.registerAlice(t)
	res := f.loginAlice(t)

	access, err := f.svc.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.AccessToken, access)

	_, err = f.svc.Authenticate(ctx, access)
	assert.NoError(t, err)

	_, err = f.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = f.svc.Refresh(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	ghost, _, err := NewTokenCodec(f.clock.Now).Issue(99, f.svc.cfg.RefreshSecret, time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, ghost)
	assert.ErrorIs(t, err, ErrUserNotFound)

	f.clock.Advance(7*24*time.Hour + time.Second)
	_, err = f.svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func resetTokenFromLink(t *testing.T, link string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(link, resetURL+"/"), "unexpected link %q", link)
	return strings.TrimPrefix(link, resetURL+"/")
}

func TestAuthService_ForgotPassword(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.registerAlice(t)

	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@example.com"))
	mail := f.mailer.last(t)
	assert.Equal(t, "alice@example.com", mail.to)
	token := resetTokenFromLink(t, mail.link)
	assert.Len(t, strings.Split(token, "."), 3)

	assert.ErrorIs(t, f.svc.ForgotPassword(ctx, "nobody@example.com"), ErrUserNotFound)
	assert.ErrorIs(t, f.svc.ForgotPassword(ctx, ""), ErrMissingFields)

	f.mailer.err = errors.New("smtp unavailable")
	assert.ErrorContains(t, f.svc.ForgotPassword(ctx, "alice@example.com"), "smtp unavailable")
}

func TestAuthService_ResetPassword(t *testing.T) {
	ctx := context.Background()
	const newPassword = "N3w!Passw0rd"

	t.Run("sets the new password", func(t *testing.T) {
		f := newAuthFixture(t)
		f.registerAlice(t)
		require.NoError(t, f.svc.ForgotPassword(ctx, "alice@example.com"))
		token := resetTokenFromLink(t, f.mailer.last(t).link)

		require.NoError(t, f.svc.ResetPassword(ctx, token, newPassword))

		_, err := f.svc.Login(ctx, "alice@example.com", alicePassword)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = f.svc.Login(ctx, "alice@example.com", newPassword)
		assert.NoError(t, err)

		// replay is accepted until the token expires
		assert.NoError(t, f.svc.ResetPassword(ctx, token, "An0ther!Pass"))

		f.clock.Advance(31 * time.Minute)
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, newPassword), ErrTokenExpired)
	})

	t.Run("single use tokens reject replay", func(t *testing.T) {
		f := newAuthFixture(t, func(c *AuthConfig) { c.SingleUseResetTokens = true })
		f.registerAlice(t)
		require.NoError(t, f.svc.ForgotPassword(ctx, "alice@example.com"))
		token := resetTokenFromLink(t, f.mailer.last(t).link)

		require.NoError(t, f.svc.ResetPassword(ctx, token, newPassword))
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "An0ther!Pass"), ErrTokenInvalid)
	})

	t.Run("single use tokens are redeemed once under concurrency", func(t *testing.T) {
		f := newAuthFixture(t, func(c *AuthConfig) { c.SingleUseResetTokens = true })
		f.svc.hasher = slowHasher{PasswordHasher: f.svc.hasher, delay: 20 * time.Millisecond}
		f.registerAlice(t)
		require.NoError(t, f.svc.ForgotPassword(ctx, "alice@example.com"))
		token := resetTokenFromLink(t, f.mailer.last(t).link)

		const n = 20
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			rejected  int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := f.svc.ResetPassword(ctx, token, newPassword)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
				} else if errors.Is(err, ErrTokenInvalid) {
					rejected++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, n-1, rejected)
	})

	t.Run("tokens are single purpose", func(t *testing.T) {
		f := newAuthFixture(t)
		f.registerAlice(t)
		res := f.loginAlice(t)

		assert.ErrorIs(t, f.svc.ResetPassword(ctx, res.AccessToken, newPassword), ErrTokenInvalid)

		require.NoError(t, f.svc.ForgotPassword(ctx, "alice@example.com"))
		token := resetTokenFromLink(t, f.mailer.last(t).link)
		_, err := f.svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("rejects weak or missing password", func(t *testing.T) {
		f := newAuthFixture(t)
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "whatever", ""), ErrMissingFields)
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "whatever", "weak"), ErrWeakPassword)
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "whatever", newPassword), ErrTokenInvalid)
	})

	t.Run("user deleted after mail was sent", func(t *testing.T) {
		f := newAuthFixture(t)
		token, _, err := f.svc.codec.IssueWithPurpose(42, model.PurposePasswordReset, f.svc.cfg.AccessSecret, time.Minute)
		require.NoError(t, err)
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, newPassword), ErrUserNotFound)
	})
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.registerAlice(t)
	identity, err := f.svc.Authenticate(ctx, f.loginAlice(t).AccessToken)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, identity.User, "Wr0ng!Pass", "N3w!Passw0rd"), ErrIncorrectPassword)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, identity.User, alicePassword, "short"), ErrWeakPassword)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, identity.User, "", "N3w!Passw0rd"), ErrMissingFields)

	require.NoError(t, f.svc.ChangePassword(ctx, identity.User, alicePassword, "N3w!Passw0rd"))
	_, err = f.svc.Login(ctx, "alice@example.com", "N3w!Passw0rd")
	assert.NoError(t, err)
}
