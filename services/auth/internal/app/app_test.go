package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthconnect/pkg/auth"
	"healthconnect/pkg/domain"
	"healthconnect/pkg/queue"
	"healthconnect/pkg/store"
)

const testPassword = "Sup3rSecret"

type testEnv struct {
	app      *App
	store    *store.MemoryStore
	sessions *store.JWTSessionStore
	mail     *queue.MemoryQueue
	offset   time.Duration
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	sessions, err := store.NewJWTSessionStore(key, "test-kid", nil, time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	require.NoError(t, err)
	env := &testEnv{
		store:    store.NewMemoryStore(),
		sessions: sessions,
		mail:     queue.NewMemoryQueue(),
	}
	env.app, err = New(Config{
		Accounts:   env.store,
		ResetCodes: env.store,
		Sessions:   sessions,
		Mail:       env.mail,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        func() time.Time { return time.Now().UTC().Add(env.offset) },
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) signUp(t *testing.T, email string) domain.Account {
	t.Helper()
	account, _, err := e.app.SignUp(SignupInput{Email: email, Password: testPassword, FullName: "Test User"})
	require.NoError(t, err)
	return account
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func (e *testEnv) lastCode(t *testing.T) string {
	t.Helper()
	jobs := e.mail.Jobs()
	require.NotEmpty(t, jobs)
	match := codePattern.FindStringSubmatch(jobs[len(jobs)-1].Body)
	require.Len(t, match, 2, "no code in mail body")
	return match[1]
}

func otherCode(code string) string {
	n, _ := strconv.Atoi(code)
	return fmt.Sprintf("%06d", (n+1)%1000000)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestSignUpCreatesAccountAndProfile(t *testing.T) {
	env := newTestEnv(t)
	account, token, err := env.app.SignUp(SignupInput{
		Email:    "  Doc@Example.com ",
		Password: testPassword,
		FullName: "Dr <b>Ada</b>",
		Role:     "Doctor",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc@example.com", account.Email)
	assert.Equal(t, domain.RoleDoctor, account.Role)
	assert.NotEmpty(t, token)

	profile, ok, err := env.store.GetProfile(account.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dr Ada", profile.FullName)
	assert.Equal(t, domain.RoleDoctor, profile.Role)

	session, ok, err := env.sessions.GetSession(token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, account.ID, session.UserID)
	assert.Equal(t, domain.RoleDoctor, session.Role)
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "taken@example.com")

	cases := []struct {
		name string
		in   SignupInput
		want error
	}{
		{"missing password", SignupInput{Email: "a@example.com", FullName: "A"}, ErrEmailAndPasswordRequired},
		{"bad email", SignupInput{Email: "not-an-email", Password: testPassword, FullName: "A"}, auth.ErrEmailInvalid},
		{"missing name", SignupInput{Email: "a@example.com", Password: testPassword}, ErrFullNameRequired},
		{"admin role", SignupInput{Email: "a@example.com", Password: testPassword, FullName: "A", Role: "admin"}, ErrRoleNotAllowed},
		{"unknown role", SignupInput{Email: "a@example.com", Password: testPassword, FullName: "A", Role: "nurse"}, ErrRoleNotAllowed},
		{"weak password", SignupInput{Email: "a@example.com", Password: "password", FullName: "A"}, auth.ErrPasswordNeedsUpper},
		{"duplicate", SignupInput{Email: "TAKEN@example.com", Password: testPassword, FullName: "A"}, ErrEmailAlreadyExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := env.app.SignUp(tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoginAndDisabledAccount(t *testing.T) {
	env := newTestEnv(t)
	account := env.signUp(t, "pat@example.com")

	_, _, err := env.app.Login("pat@example.com", "Wr0ngPassword")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = env.app.Login("nobody@example.com", testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, token, err := env.app.Login("PAT@example.com", testPassword)
	require.NoError(t, err)
	got, session, ok := env.app.UserFromToken(token)
	require.True(t, ok)
	assert.Equal(t, account.ID, got.ID)
	assert.Equal(t, domain.RolePatient, session.Role)

	require.NoError(t, env.store.SetAccountStatus(account.ID, domain.AccountDisabled, time.Now()))
	_, _, err = env.app.Login("pat@example.com", testPassword)
	assert.ErrorIs(t, err, ErrUserDisabled)
	_, _, ok = env.app.UserFromToken(token)
	assert.False(t, ok)
}

func TestAdminLoginRequiresAdminUsersRow(t *testing.T) {
	env := newTestEnv(t)
	account := env.signUp(t, "ops@example.com")

	_, _, err := env.app.AdminLogin("ops@example.com", testPassword)
	assert.ErrorIs(t, err, ErrNotAdmin)

	require.NoError(t, env.store.AddAdmin(account.ID, time.Now()))
	got, token, err := env.app.AdminLogin("ops@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	session, ok, err := env.sessions.GetSession(token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RoleAdmin, session.Role)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "pat@example.com")
	_, token, err := env.app.Login("pat@example.com", testPassword)
	require.NoError(t, err)
	require.NoError(t, env.app.Logout(token))
	_, _, ok := env.app.UserFromToken(token)
	assert.False(t, ok)
}

func TestSendResetCodeUnknownEmailMatchesKnownEmail(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "user@example.com")
	ctx := context.Background()

	known, err := env.app.SendPasswordResetCode(ctx, "user@example.com")
	require.NoError(t, err)
	unknown, err := env.app.SendPasswordResetCode(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Equal(t, known, unknown)
	assert.Equal(t, ResetCodeSentMessage, unknown)
	assert.Len(t, env.mail.Jobs(), 1)
}

func TestSendResetCodeIssuesSixDigitCodeWithFifteenMinuteExpiry(t *testing.T) {
	env := newTestEnv(t)
	account := env.signUp(t, "user@example.com")

	before := time.Now().UTC()
	_, err := env.app.SendPasswordResetCode(context.Background(), "User@Example.com")
	require.NoError(t, err)

	job := env.mail.Jobs()[0]
	assert.Equal(t, queue.KindPasswordReset, job.Kind)
	assert.Equal(t, "user@example.com", job.To)
	code := env.lastCode(t)
	assert.Regexp(t, `^\d{6}$`, code)

	stored, ok, err := env.store.FindResetCode(account.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, code, stored.CodeHash)
	assert.WithinDuration(t, before.Add(15*time.Minute), stored.ExpiresAt, 5*time.Second)
}

func TestNewCodeReplacesPrevious(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "user@example.com")
	ctx := context.Background()

	_, err := env.app.SendPasswordResetCode(ctx, "user@example.com")
	require.NoError(t, err)
	first := env.lastCode(t)
	_, err = env.app.SendPasswordResetCode(ctx, "user@example.com")
	require.NoError(t, err)
	second := env.lastCode(t)

	if first != second {
		err = env.app.VerifyResetCodeAndUpdatePassword(ctx, "user@example.com", first, "N3wPassword")
		assert.ErrorIs(t, err, ErrInvalidResetCode)
	}
	require.NoError(t, env.app.VerifyResetCodeAndUpdatePassword(ctx, "user@example.com", second, "N3wPassword"))
}

func TestVerifyResetCodeSucceedsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "user@example.com")
	ctx := context.Background()
	_, oldToken, err := env.app.Login("user@example.com", testPassword)
	require.NoError(t, err)

	_, err = env.app.SendPasswordResetCode(ctx, "user@example.com")
	require.NoError(t, err)
	code := env.lastCode(t)

	require.NoError(t, env.app.VerifyResetCodeAndUpdatePassword(ctx, "user@example.com", code, "N3wPassword"))
	err = env.app.VerifyResetCodeAndUpdatePassword(ctx, "user@example.com", code, "An0therPassword")
	assert.ErrorIs(t, err, ErrInvalidResetCode)

	_, _, err = env.app.Login("user@example.com", testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = env.app.Login("user@example.com", "N3wPassword")
	assert.NoError(t, err)

	_, _, ok := env.app.UserFromToken(oldToken)
	assert.False(t, ok, "sessions issued before the reset must be revoked")
}

func TestVerifyResetCodeFailuresShareOneError(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "user@example.com")
	ctx := context.Background()
	_, err := env.app.SendPasswordResetCode(ctx, "user@example.com")
	require.NoError(t, err)
	code := env.lastCode(t)

	cases := []struct {
		name  string
		email string
		code  string
	}{
		{"wrong code", "user@example.com", otherCode(code)},
		{"unknown email", "ghost@example.com", code},
		{"malformed code", "user@example.com", "12ab56"},
		{"short code", "user@example.com", code[:5]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := env.app.VerifyResetCodeAndUpdatePassword(ctx, tc.email, tc.code, "N3wPassword")
			assert.ErrorIs(t, err, ErrInvalidResetCode)
			assert.Equal(t, "Invalid or expired verification code", err.Error())
		})
	}

	env.offset = 16 * time.Minute
	err = env.app.VerifyResetCodeAndUpdatePassword(ctx, "user@example.com", code, "N3wPassword")
	assert.ErrorIs(t, err, ErrInvalidResetCode, "expired code")
}

func TestVerifyResetCodeValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "user@example.com")
	ctx := context.Background()
	_, err := env.app.SendPasswordResetCode(ctx, "user@example.com")
	require.NoError(t, err)
	code := env.lastCode(t)

	err = env.app.VerifyResetCodeAndUpdatePassword(ctx, "user@example.com", "", "N3wPassword")
	assert.ErrorIs(t, err, ErrResetFieldsRequired)
	err = env.app.VerifyResetCodeAndUpdatePassword(ctx, "user@example.com", code, "short")
	assert.ErrorIs(t, err, auth.ErrPasswordTooShort)

	// A policy failure leaves the code usable.
	require.NoError(t, env.app.VerifyResetCodeAndUpdatePassword(ctx, "user@example.com", code, "N3wPassword"))
}

func TestSendResetCodeQueueFailure(t *testing.T) {
	env := newTestEnv(t)
	account := env.signUp(t, "user@example.com")
	env.mail.FailWith(errors.New("redis down"))

	_, err := env.app.SendPasswordResetCode(context.Background(), "user@example.com")
	assert.ErrorIs(t, err, ErrResetDelivery)

	_, ok, err := env.store.FindResetCode(account.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "undelivered code must not stay active")
}

func TestSendResetCodeIgnoresDisabledAccount(t *testing.T) {
	env := newTestEnv(t)
	account := env.signUp(t, "user@example.com")
	require.NoError(t, env.store.SetAccountStatus(account.ID, domain.AccountDisabled, time.Now()))

	msg, err := env.app.SendPasswordResetCode(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, ResetCodeSentMessage, msg)
	assert.Empty(t, env.mail.Jobs())
}

func TestSweepExpiredResetCodes(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "user@example.com")
	_, err := env.app.SendPasswordResetCode(context.Background(), "user@example.com")
	require.NoError(t, err)

	n, err := env.app.SweepExpiredResetCodes()
	require.NoError(t, err)
	assert.Zero(t, n)

	env.offset = time.Hour
	n, err = env.app.SweepExpiredResetCodes()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func countCodeHashing(t *testing.T) (hashes, checks *int) {
	t.Helper()
	hashes, checks = new(int), new(int)
	origHash, origCheck := hashResetCode, checkResetCode
	hashResetCode = func(code string) (string, error) {
		*hashes++
		return origHash(code)
	}
	checkResetCode = func(code, hash string) bool {
		*checks++
		return origCheck(code, hash)
	}
	t.Cleanup(func() { hashResetCode, checkResetCode = origHash, origCheck })
	return hashes, checks
}

func TestSendResetCodeHashesForUnknownAndDisabledAccounts(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "user@example.com")
	disabled := env.signUp(t, "off@example.com")
	require.NoError(t, env.store.SetAccountStatus(disabled.ID, domain.AccountDisabled, time.Now()))
	hashes, _ := countCodeHashing(t)
	ctx := context.Background()

	for _, email := range []string{"user@example.com", "ghost@example.com", "off@example.com"} {
		before := *hashes
		_, err := env.app.SendPasswordResetCode(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, 1, *hashes-before, email)
	}
	assert.Len(t, env.mail.Jobs(), 1)
}

func TestVerifyResetCodeComparesForUnknownAccountAndMissingCode(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "user@example.com")
	_, checks := countCodeHashing(t)
	ctx := context.Background()

	err := env.app.VerifyResetCodeAndUpdatePassword(ctx, "ghost@example.com", "123456", "N3wPassword")
	require.ErrorIs(t, err, ErrInvalidResetCode)
	assert.Equal(t, 1, *checks)

	err = env.app.VerifyResetCodeAndUpdatePassword(ctx, "user@example.com", "123456", "N3wPassword")
	require.ErrorIs(t, err, ErrInvalidResetCode)
	assert.Equal(t, 2, *checks)
}
