package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"healthconnect/internal/util"
	"healthconnect/pkg/auth"
	"healthconnect/pkg/domain"
	"healthconnect/pkg/queue"
	"healthconnect/pkg/store"
)

// Sessions is the token side of the auth service: issuing, validating,
// revoking and publishing verification keys.
type Sessions interface {
	store.SessionStore
	store.UserSessionRevoker
	store.JWKSProvider
}

// Config holds the dependencies of the auth application.
type Config struct {
	Accounts     store.AccountStore
	ResetCodes   store.ResetCodeStore
	Sessions     Sessions
	Mail         queue.Enqueuer
	ResetCodeTTL time.Duration
	Logger       *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// App implements account, session and password-reset operations.
type App struct {
	accounts     store.AccountStore
	resetCodes   store.ResetCodeStore
	sessions     Sessions
	mail         queue.Enqueuer
	resetCodeTTL time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// SignupInput is a self-registration request.
type SignupInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
	Role     string
}

// New validates the dependencies and builds the application.
func New(cfg Config) (*App, error) {
	if cfg.Accounts == nil {
		return nil, errors.New("account store required")
	}
	if cfg.ResetCodes == nil {
		return nil, errors.New("reset code store required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	if cfg.Mail == nil {
		return nil, errors.New("mail queue required")
	}
	if cfg.ResetCodeTTL <= 0 {
		cfg.ResetCodeTTL = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &App{
		accounts:     cfg.Accounts,
		resetCodes:   cfg.ResetCodes,
		sessions:     cfg.Sessions,
		mail:         cfg.Mail,
		resetCodeTTL: cfg.ResetCodeTTL,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}, nil
}

// SignUp registers a patient or doctor and issues an access token.
func (a *App) SignUp(in SignupInput) (domain.Account, string, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return domain.Account{}, "", ErrEmailAndPasswordRequired
	}
	email, err := auth.NormalizeEmail(in.Email)
	if err != nil {
		return domain.Account{}, "", err
	}
	fullName := util.SanitizeText(in.FullName)
	if fullName == "" {
		return domain.Account{}, "", ErrFullNameRequired
	}
	role := domain.RolePatient
	if strings.TrimSpace(in.Role) != "" {
		parsed, ok := domain.ParseRole(in.Role)
		if !ok || parsed == domain.RoleAdmin {
			return domain.Account{}, "", ErrRoleNotAllowed
		}
		role = parsed
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.Account{}, "", err
	}
	_, exists, err := a.accounts.GetAccountByEmail(email)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.Account{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := a.now()
	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Status:       domain.AccountActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := domain.Profile{
		ID:        account.ID,
		Email:     email,
		FullName:  fullName,
		Phone:     util.SanitizeText(in.Phone),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.accounts.CreateAccount(account, profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Account{}, "", ErrEmailAlreadyExists
		}
		return domain.Account{}, "", fmt.Errorf("create account: %w", err)
	}
	token, err := a.sessions.NewSession(account.ID, account.Role)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("issue access token: %w", err)
	}
	return account, token, nil
}

// Login validates credentials and issues an access token carrying the account role.
// Admin accounts must still be listed in admin_users.
func (a *App) Login(email, password string) (domain.Account, string, error) {
	account, err := a.checkCredentials(email, password)
	if err != nil {
		return domain.Account{}, "", err
	}
	if account.Role == domain.RoleAdmin {
		isAdmin, err := a.accounts.IsAdmin(account.ID)
		if err != nil {
			return domain.Account{}, "", fmt.Errorf("check admin: %w", err)
		}
		if !isAdmin {
			return domain.Account{}, "", ErrInvalidCredentials
		}
	}
	token, err := a.sessions.NewSession(account.ID, account.Role)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("issue access token: %w", err)
	}
	return account, token, nil
}

// AdminLogin issues an admin-role token for accounts listed in admin_users.
func (a *App) AdminLogin(email, password string) (domain.Account, string, error) {
	account, err := a.checkCredentials(email, password)
	if err != nil {
		return domain.Account{}, "", err
	}
	isAdmin, err := a.accounts.IsAdmin(account.ID)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("check admin: %w", err)
	}
	if !isAdmin {
		return domain.Account{}, "", ErrNotAdmin
	}
	account.Role = domain.RoleAdmin
	token, err := a.sessions.NewSession(account.ID, domain.RoleAdmin)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("issue access token: %w", err)
	}
	return account, token, nil
}

func (a *App) checkCredentials(email, password string) (domain.Account, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return domain.Account{}, ErrEmailAndPasswordRequired
	}
	email = strings.TrimSpace(strings.ToLower(email))
	account, ok, err := a.accounts.GetAccountByEmail(email)
	if err != nil {
		return domain.Account{}, fmt.Errorf("fetch account: %w", err)
	}
	if !ok {
		return domain.Account{}, ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, account.PasswordHash) {
		return domain.Account{}, ErrInvalidCredentials
	}
	if account.Status == domain.AccountDisabled {
		return domain.Account{}, ErrUserDisabled
	}
	return account, nil
}

// UserFromToken resolves the account and session behind an access token.
func (a *App) UserFromToken(token string) (domain.Account, store.Session, bool) {
	session, ok, err := a.sessions.GetSession(token)
	if err != nil || !ok {
		return domain.Account{}, store.Session{}, false
	}
	account, found, err := a.accounts.GetAccountByID(session.UserID)
	if err != nil || !found {
		return domain.Account{}, store.Session{}, false
	}
	if account.Status == domain.AccountDisabled {
		return domain.Account{}, store.Session{}, false
	}
	account.Role = session.Role
	return account, session, true
}

// Logout revokes a single access token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// JWKS returns the public keys that verify issued tokens.
func (a *App) JWKS() []store.JWK {
	return a.sessions.JWKS()
}
