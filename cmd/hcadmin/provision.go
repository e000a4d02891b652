package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"healthconnect/internal/util"
	"healthconnect/pkg/auth"
	"healthconnect/pkg/domain"
	"healthconnect/pkg/store"
)

var (
	errNotAdminAccount = errors.New("account exists with a non-admin role")
	errAccountNotFound = errors.New("account not found")
	errNotAdmin        = errors.New("account is not an admin")
)

// provisioner manages admin_users rows and the accounts behind them.
type provisioner struct {
	accounts store.AccountStore
	revoker  store.TokenRevoker
	out      io.Writer
	now      func() time.Time
}

// createAdmin creates an admin account with its profile, or re-grants admin
// access to an existing admin-role account.
func (p *provisioner) createAdmin(email, password, fullName string) (domain.Account, error) {
	email, err := auth.NormalizeEmail(email)
	if err != nil {
		return domain.Account{}, err
	}
	now := p.now().UTC()
	account, exists, err := p.accounts.GetAccountByEmail(email)
	if err != nil {
		return domain.Account{}, fmt.Errorf("fetch account: %w", err)
	}
	if exists {
		if account.Role != domain.RoleAdmin {
			return domain.Account{}, errNotAdminAccount
		}
		if err := p.accounts.AddAdmin(account.ID, now); err != nil {
			return domain.Account{}, fmt.Errorf("add admin: %w", err)
		}
		fmt.Fprintf(p.out, "admin access granted to existing account %s (%s)\n", account.ID, auth.MaskEmail(email))
		return account, nil
	}

	if err := auth.ValidatePassword(password); err != nil {
		return domain.Account{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}
	fullName = util.SanitizeText(fullName)
	if fullName == "" {
		fullName = "Administrator"
	}
	account = domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Status:       domain.AccountActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := domain.Profile{
		ID:        account.ID,
		Email:     email,
		FullName:  fullName,
		Role:      domain.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.accounts.CreateAccount(account, profile); err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	if err := p.accounts.AddAdmin(account.ID, now); err != nil {
		return domain.Account{}, fmt.Errorf("add admin: %w", err)
	}
	fmt.Fprintf(p.out, "admin account %s created (%s)\n", account.ID, auth.MaskEmail(email))
	return account, nil
}

// revokeAdmin removes the admin_users row and invalidates every token the
// account holds.
func (p *provisioner) revokeAdmin(email string) error {
	email, err := auth.NormalizeEmail(email)
	if err != nil {
		return err
	}
	account, ok, err := p.accounts.GetAccountByEmail(email)
	if err != nil {
		return fmt.Errorf("fetch account: %w", err)
	}
	if !ok {
		return errAccountNotFound
	}
	removed, err := p.accounts.RemoveAdmin(account.ID)
	if err != nil {
		return fmt.Errorf("remove admin: %w", err)
	}
	if !removed {
		return errNotAdmin
	}
	if p.revoker != nil {
		if err := p.revoker.RevokeUser(account.ID, p.now().UTC()); err != nil {
			return fmt.Errorf("admin removed but session revocation failed: %w", err)
		}
	}
	fmt.Fprintf(p.out, "admin access revoked for %s\n", auth.MaskEmail(email))
	return nil
}
