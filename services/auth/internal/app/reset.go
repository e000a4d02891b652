package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"healthconnect/pkg/auth"
	"healthconnect/pkg/domain"
	"healthconnect/pkg/mail"
	"healthconnect/pkg/queue"
)

const resetCodeLength = 6

// ErrResetDelivery wraps storage or queue failures while issuing a code.
var ErrResetDelivery = errors.New("could not send verification code")

// Code hashing is a package hook so tests can count bcrypt work per branch.
var (
	hashResetCode  = auth.HashPassword
	checkResetCode = auth.CheckPassword
)

// decoyCodeHash is compared against when no real code exists, so misses cost
// the same bcrypt time as hits.
var decoyCodeHash = sync.OnceValue(func() string {
	hash, err := auth.HashPassword("000000")
	if err != nil {
		return ""
	}
	return hash
})

// SendPasswordResetCode issues a fresh code for the account behind email and
// queues it for delivery. Unknown and disabled accounts get the same message
// as real ones.
func (a *App) SendPasswordResetCode(ctx context.Context, email string) (string, error) {
	email, err := auth.NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	account, ok, err := a.accounts.GetAccountByEmail(email)
	if err != nil {
		return "", fmt.Errorf("%w: fetch account: %v", ErrResetDelivery, err)
	}
	if !ok || account.Status != domain.AccountActive {
		// Same hashing cost as a real issue keeps the response time flat.
		if code, err := auth.GenerateNumericCode(resetCodeLength); err == nil {
			_, _ = hashResetCode(code)
		}
		a.logger.Info("password_reset_ignored", "email", auth.MaskEmail(email))
		return ResetCodeSentMessage, nil
	}

	code, err := auth.GenerateNumericCode(resetCodeLength)
	if err != nil {
		return "", fmt.Errorf("%w: generate code: %v", ErrResetDelivery, err)
	}
	codeHash, err := hashResetCode(code)
	if err != nil {
		return "", fmt.Errorf("%w: hash code: %v", ErrResetDelivery, err)
	}
	stored, err := a.resetCodes.ReplaceResetCode(account.ID, codeHash, a.now().Add(a.resetCodeTTL))
	if err != nil {
		return "", fmt.Errorf("%w: store code: %v", ErrResetDelivery, err)
	}

	msg := mail.PasswordResetMessage(account.Email, code, a.resetCodeTTL)
	job := queue.MailJob{Kind: queue.KindPasswordReset, To: msg.To, Subject: msg.Subject, Body: msg.Body}
	if _, err := a.mail.Enqueue(ctx, job); err != nil {
		if delErr := a.resetCodes.DeleteResetCode(stored.ID); delErr != nil {
			a.logger.Error("password_reset_cleanup_failed", "user_id", account.ID, "err", delErr)
		}
		return "", fmt.Errorf("%w: enqueue mail: %v", ErrResetDelivery, err)
	}
	a.logger.Info("password_reset_code_issued", "user_id", account.ID, "expires_at", stored.ExpiresAt)
	return ResetCodeSentMessage, nil
}

// VerifyResetCodeAndUpdatePassword sets a new password if code is the
// account's current unexpired code. A code can be used once; every session
// issued before the reset is revoked.
func (a *App) VerifyResetCodeAndUpdatePassword(ctx context.Context, email, code, newPassword string) error {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" || newPassword == "" {
		return ErrResetFieldsRequired
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}
	email, err := auth.NormalizeEmail(email)
	if err != nil || !isNumericCode(code) {
		return ErrInvalidResetCode
	}
	account, ok, err := a.accounts.GetAccountByEmail(email)
	if err != nil {
		return fmt.Errorf("fetch account: %w", err)
	}
	if !ok || account.Status != domain.AccountActive {
		checkResetCode(code, decoyCodeHash())
		return ErrInvalidResetCode
	}
	now := a.now()
	stored, ok, err := a.resetCodes.FindResetCode(account.ID, now)
	if err != nil {
		return fmt.Errorf("fetch reset code: %w", err)
	}
	if !ok {
		checkResetCode(code, decoyCodeHash())
		return ErrInvalidResetCode
	}
	if !checkResetCode(code, stored.CodeHash) {
		return ErrInvalidResetCode
	}
	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	consumed, err := a.resetCodes.ConsumeResetCode(stored.ID, account.ID, passwordHash, now)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if !consumed {
		return ErrInvalidResetCode
	}
	if err := a.sessions.RevokeUserSessions(account.ID, now); err != nil {
		a.logger.Error("password_reset_revoke_failed", "user_id", account.ID, "err", err)
	}
	a.logger.Info("password_reset_completed", "user_id", account.ID)
	return nil
}

// SweepExpiredResetCodes deletes codes that expired before now.
func (a *App) SweepExpiredResetCodes() (int, error) {
	return a.resetCodes.DeleteExpiredResetCodes(a.now())
}

// StartResetCodeSweeper runs SweepExpiredResetCodes every interval until ctx
// is done.
func (a *App) StartResetCodeSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := a.SweepExpiredResetCodes()
				if err != nil {
					a.logger.Warn("reset_code_sweep_failed", "err", err)
					continue
				}
				if n > 0 {
					a.logger.Info("reset_code_sweep", "deleted", n)
				}
			}
		}
	}()
}

func isNumericCode(code string) bool {
	if len(code) != resetCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
