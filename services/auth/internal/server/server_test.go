package server

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"healthconnect/internal/ratelimit"
	"healthconnect/pkg/queue"
	"healthconnect/pkg/store"
	"healthconnect/services/auth/internal/app"
	"healthconnect/services/auth/internal/security"
)

const testPassword = "Sup3rSecret"

type testServer struct {
	handler http.Handler
	store   *store.MemoryStore
	mail    *queue.MemoryQueue
}

type limiterSpec struct {
	resetSend int
}

func newTestServer(t *testing.T, limits limiterSpec) *testServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sessions, err := store.NewJWTSessionStore(key, "kid-1", nil, time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	mem := store.NewMemoryStore()
	mail := queue.NewMemoryQueue()
	core, err := app.New(app.Config{
		Accounts:   mem,
		ResetCodes: mem,
		Sessions:   sessions,
		Mail:       mail,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	var limiters Limiters
	if limits.resetSend > 0 {
		limiters.ResetSend, err = ratelimit.NewFixedWindowLimiter(client, "test:rl:send", limits.resetSend, time.Hour)
		if err != nil {
			t.Fatalf("limiter: %v", err)
		}
	}
	limiters.ResetVerify, err = ratelimit.NewFixedWindowLimiter(client, "test:rl:verify", 50, time.Hour)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}

	srv := New(Config{
		App:      core,
		Limiters: limiters,
		Alerter:  security.NewAuditAlerter(client, "test:alerts"),
	})
	return &testServer{handler: srv.Router(), store: mem, mail: mail}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"email":    email,
		"password": testPassword,
		"fullName": "Pat Example",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, rec, &resp)
	return resp.Token
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func (ts *testServer) lastCode(t *testing.T) string {
	t.Helper()
	jobs := ts.mail.Jobs()
	if len(jobs) == 0 {
		t.Fatalf("no mail queued")
	}
	match := codePattern.FindStringSubmatch(jobs[len(jobs)-1].Body)
	if len(match) != 2 {
		t.Fatalf("no code in mail body")
	}
	return match[1]
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, rec, &body)
	return body["error"]
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, limiterSpec{})
	rec := ts.do(t, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestSignupLoginMeLogout(t *testing.T) {
	ts := newTestServer(t, limiterSpec{})
	ts.signup(t, "pat@example.com")

	rec := ts.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"email": "pat@example.com", "password": testPassword, "fullName": "Again",
	}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status=%d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "pat@example.com", "password": "nope"}, "")
	if rec.Code != http.StatusUnauthorized || errorBody(t, rec) != app.ErrInvalidCredentials.Error() {
		t.Fatalf("bad login status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "pat@example.com", "password": testPassword}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
		User  struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	decode(t, rec, &login)
	if login.User.Role != "patient" || login.User.Email != "pat@example.com" {
		t.Fatalf("unexpected user %+v", login.User)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("$2a$")) {
		t.Fatalf("password hash leaked in response")
	}

	rec = ts.do(t, http.MethodGet, "/auth/me", nil, login.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status=%d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/auth/logout", nil, login.Token)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status=%d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/auth/me", nil, login.Token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout status=%d", rec.Code)
	}
}

func TestAdminLoginForbiddenForRegularAccount(t *testing.T) {
	ts := newTestServer(t, limiterSpec{})
	ts.signup(t, "pat@example.com")
	rec := ts.do(t, http.MethodPost, "/auth/admin/login", map[string]string{"email": "pat@example.com", "password": testPassword}, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestJWKS(t *testing.T) {
	ts := newTestServer(t, limiterSpec{})
	rec := ts.do(t, http.MethodGet, "/auth/jwks", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body struct {
		Keys []store.JWK `json:"keys"`
	}
	decode(t, rec, &body)
	if len(body.Keys) != 1 || body.Keys[0].Kid != "kid-1" || body.Keys[0].Alg != "RS256" {
		t.Fatalf("unexpected jwks %+v", body.Keys)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	ts := newTestServer(t, limiterSpec{})
	oldToken := ts.signup(t, "user@example.com")

	rec := ts.do(t, http.MethodPost, "/send-password-reset-code", map[string]string{"email": "user@example.com"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("send status=%d body=%s", rec.Code, rec.Body.String())
	}
	known := rec.Body.String()
	code := ts.lastCode(t)

	rec = ts.do(t, http.MethodPost, "/send-password-reset-code", map[string]string{"email": "ghost@example.com"}, "")
	if rec.Code != http.StatusOK || rec.Body.String() != known {
		t.Fatalf("unknown email response differs: %d %s vs %s", rec.Code, rec.Body.String(), known)
	}

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rec = ts.do(t, http.MethodPost, "/verify-reset-code-and-update-password", map[string]string{
		"email": "user@example.com", "code": wrong, "newPassword": "N3wPassword",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong code status=%d", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"error\":\"Invalid or expired verification code\"}\n" {
		t.Fatalf("unexpected body %q", got)
	}

	verify := map[string]string{"email": "user@example.com", "code": code, "newPassword": "N3wPassword"}
	rec = ts.do(t, http.MethodPost, "/verify-reset-code-and-update-password", verify, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPost, "/verify-reset-code-and-update-password", verify, "")
	if rec.Code != http.StatusBadRequest || errorBody(t, rec) != app.ErrInvalidResetCode.Error() {
		t.Fatalf("reuse status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/auth/me", nil, oldToken)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("token issued before reset still valid: %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "user@example.com", "password": "N3wPassword"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login with new password status=%d", rec.Code)
	}
}

func TestPasswordResetValidation(t *testing.T) {
	ts := newTestServer(t, limiterSpec{})
	cases := []struct {
		name string
		path string
		body map[string]string
		want int
	}{
		{"send missing email", "/send-password-reset-code", map[string]string{}, http.StatusBadRequest},
		{"send malformed email", "/send-password-reset-code", map[string]string{"email": "nope"}, http.StatusBadRequest},
		{"verify missing code", "/verify-reset-code-and-update-password", map[string]string{"email": "a@example.com", "newPassword": "N3wPassword"}, http.StatusBadRequest},
		{"verify weak password", "/verify-reset-code-and-update-password", map[string]string{"email": "a@example.com", "code": "123456", "newPassword": "weak"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tc.path, tc.body, "")
			if rec.Code != tc.want {
				t.Fatalf("status=%d want=%d body=%s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}

	rec := ts.do(t, http.MethodGet, "/send-password-reset-code", nil, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/verify-reset-code-and-update-password", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json status=%d", rr.Code)
	}
}

func TestSendResetCodeQueueFailureIs500(t *testing.T) {
	ts := newTestServer(t, limiterSpec{})
	ts.signup(t, "user@example.com")
	ts.mail.FailWith(errors.New("queue down"))
	rec := ts.do(t, http.MethodPost, "/send-password-reset-code", map[string]string{"email": "user@example.com"}, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	if errorBody(t, rec) == "" {
		t.Fatalf("expected error body")
	}
}

func TestSendResetCodeRateLimited(t *testing.T) {
	ts := newTestServer(t, limiterSpec{resetSend: 2})
	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/send-password-reset-code", map[string]string{"email": "ghost@example.com"}, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d status=%d", i+1, rec.Code)
		}
	}
	rec := ts.do(t, http.MethodPost, "/send-password-reset-code", map[string]string{"email": "ghost@example.com"}, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}
