package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"healthconnect/internal/ratelimit"
	"healthconnect/internal/util"
	"healthconnect/pkg/auth"
	"healthconnect/pkg/domain"
	"healthconnect/services/auth/internal/app"
	"healthconnect/services/auth/internal/security"
)

// Limiters groups the per-endpoint rate limiters. Nil limiters are skipped.
type Limiters struct {
	Signup      *ratelimit.FixedWindowLimiter
	Login       *ratelimit.FixedWindowLimiter
	ResetSend   *ratelimit.FixedWindowLimiter
	ResetVerify *ratelimit.FixedWindowLimiter
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Limiters       Limiters
	Alerter        *security.AuditAlerter
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the auth service.
type Server struct {
	app      *app.App
	limiters Limiters
	alerter  *security.AuditAlerter
	proxies  *util.TrustedProxies
	mux      *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:      cfg.App,
		limiters: cfg.Limiters,
		alerter:  cfg.Alerter,
		proxies:  cfg.TrustedProxies,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/auth/jwks", s.handleJWKS)
	s.mux.Handle("/auth/me", s.authenticated(s.handleMe))

	// admin
	s.mux.HandleFunc("/auth/admin/login", s.handleAdminLogin)

	// password reset
	s.mux.HandleFunc("/send-password-reset-code", s.handleSendResetCode)
	s.mux.HandleFunc("/verify-reset-code-and-update-password", s.handleVerifyResetCode)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.Account)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		account, _, ok := s.app.UserFromToken(token)
		if !ok {
			s.audit(r, security.EventAuthorize, security.OutcomeFail)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, account)
	})
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(w, r, s.limiters.Signup, security.EventSignup, s.clientIP(r)) {
		return
	}
	var req signupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, token, err := s.app.SignUp(app.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		s.audit(r, security.EventSignup, security.OutcomeFail)
		switch {
		case errors.Is(err, app.ErrEmailAlreadyExists):
			writeError(w, http.StatusConflict, err.Error())
		case isValidationError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.internalError(w, r, "signup failed", err)
		}
		return
	}
	s.audit(r, security.EventSignup, security.OutcomeSuccess)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: account})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.login(w, r, security.EventLogin, s.app.Login)
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	s.login(w, r, security.EventAdminLogin, s.app.AdminLogin)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, event string, fn func(email, password string) (domain.Account, string, error)) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(w, r, s.limiters.Login, event, s.clientIP(r)) {
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, token, err := fn(req.Email, req.Password)
	if err != nil {
		s.audit(r, event, security.OutcomeFail)
		switch {
		case errors.Is(err, app.ErrEmailAndPasswordRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrUserDisabled):
			writeError(w, http.StatusUnauthorized, app.ErrInvalidCredentials.Error())
		case errors.Is(err, app.ErrNotAdmin):
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			s.internalError(w, r, "login failed", err)
		}
		return
	}
	s.audit(r, event, security.OutcomeSuccess)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: account})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		s.audit(r, security.EventLogout, security.OutcomeFail)
		s.internalError(w, r, "logout failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, account domain.Account) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, map[string]any{"keys": s.app.JWKS()})
}

// password reset handlers
func (s *Server) handleSendResetCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(w, r, s.limiters.ResetSend, security.EventResetSend, s.clientIP(r)) {
		return
	}
	var req resetSendRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg, err := s.app.SendPasswordResetCode(r.Context(), req.Email)
	if err != nil {
		s.audit(r, security.EventResetSend, security.OutcomeFail)
		switch {
		case errors.Is(err, auth.ErrEmailRequired), errors.Is(err, auth.ErrEmailInvalid):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			util.LoggerFromContext(r.Context()).Error("send reset code failed", "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to send verification code")
		}
		return
	}
	s.audit(r, security.EventResetSend, security.OutcomeSuccess)
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (s *Server) handleVerifyResetCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req resetVerifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !s.allow(w, r, s.limiters.ResetVerify, security.EventResetVerify, s.clientIP(r)) {
		return
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		if !s.allow(w, r, s.limiters.ResetVerify, security.EventResetVerify, "email:"+email) {
			return
		}
	}
	err := s.app.VerifyResetCodeAndUpdatePassword(r.Context(), req.Email, req.Code, req.NewPassword)
	if err != nil {
		s.audit(r, security.EventResetVerify, security.OutcomeFail)
		switch {
		case errors.Is(err, app.ErrInvalidResetCode), errors.Is(err, app.ErrResetFieldsRequired), isValidationError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.internalError(w, r, "verify reset code failed", err)
		}
		return
	}
	s.audit(r, security.EventResetVerify, security.OutcomeSuccess)
	writeJSON(w, http.StatusOK, messageResponse{Message: app.PasswordUpdatedMessage})
}

// allow applies limiter to key and writes a 429 when the quota is spent.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, event, key string) bool {
	if limiter == nil {
		return true
	}
	decision := limiter.Allow(r.Context(), event+":"+key)
	if decision.Allowed {
		return true
	}
	s.audit(r, event, security.OutcomeRateLimited)
	retry := int(decision.RetryAfter.Round(time.Second) / time.Second)
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

// audit logs a security event and feeds the threshold alerter.
func (s *Server) audit(r *http.Request, event, outcome string) {
	ip := s.clientIP(r)
	logger := util.LoggerFromContext(r.Context())
	logger.Info("security_event", "event", event, "outcome", outcome, "ip", ip)
	if s.alerter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()
	result, err := s.alerter.Observe(ctx, event, outcome, ip)
	if err != nil {
		logger.Warn("security_alert_observe_failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Warn("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.proxies)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	util.LoggerFromContext(r.Context()).Error(msg, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func isValidationError(err error) bool {
	for _, target := range []error{
		app.ErrEmailAndPasswordRequired,
		app.ErrFullNameRequired,
		app.ErrRoleNotAllowed,
		auth.ErrEmailRequired,
		auth.ErrEmailInvalid,
		auth.ErrPasswordTooShort,
		auth.ErrPasswordTooLong,
		auth.ErrPasswordNeedsUpper,
		auth.ErrPasswordNeedsLower,
		auth.ErrPasswordNeedsDigit,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type authResponse struct {
	Token string         `json:"token"`
	User  domain.Account `json:"user"`
}

type resetSendRequest struct {
	Email string `json:"email"`
}

type resetVerifyRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		slog.Debug("missing bearer prefix", "path", r.URL.Path)
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		slog.Debug("empty bearer token", "path", r.URL.Path)
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
