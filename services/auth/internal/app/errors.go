package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// This message is intended to be shown to end users and should not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	// ErrUserDisabled is returned when an account is disabled.
	// Handlers should generally NOT expose this to clients to avoid account enumeration.
	ErrUserDisabled = errors.New("user disabled")

	// ErrNotAdmin is returned by admin login for accounts missing from admin_users.
	ErrNotAdmin = errors.New("account is not an administrator")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already exists")
	ErrFullNameRequired         = errors.New("full name is required")
	ErrRoleNotAllowed           = errors.New("role must be patient or doctor")

	ErrEmailRequired = errors.New("email required")

	// ErrResetFieldsRequired is returned when a verification request is incomplete.
	ErrResetFieldsRequired = errors.New("email, code and newPassword are required")

	// ErrInvalidResetCode covers unknown accounts, wrong codes, expired codes and
	// codes already used, so callers cannot tell them apart.
	ErrInvalidResetCode = errors.New("Invalid or expired verification code")
)

// ResetCodeSentMessage is returned by every successful or silently ignored
// reset-code request.
const ResetCodeSentMessage = "If an account exists for this email, a verification code has been sent."

// PasswordUpdatedMessage is returned after a successful reset.
const PasswordUpdatedMessage = "Password updated successfully"
