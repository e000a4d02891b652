package store

import (
	"errors"
	"time"

	"healthconnect/pkg/domain"
)

var (
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("record already exists")
	// ErrNotFound is returned by updates that target a missing row.
	ErrNotFound = errors.New("record not found")
)

// AccountStore persists credentials and admin membership. It is owned by the
// auth service.
type AccountStore interface {
	// CreateAccount inserts the account and its profile row atomically.
	CreateAccount(domain.Account, domain.Profile) error
	GetAccountByEmail(email string) (domain.Account, bool, error)
	GetAccountByID(id string) (domain.Account, bool, error)
	UpdatePassword(userID, passwordHash string, at time.Time) error
	SetAccountStatus(userID string, status domain.AccountStatus, at time.Time) error

	IsAdmin(userID string) (bool, error)
	AddAdmin(userID string, at time.Time) error
	RemoveAdmin(userID string) (bool, error)
}

// ResetCodeStore persists hashed password-reset codes, at most one per account.
type ResetCodeStore interface {
	// ReplaceResetCode deletes any code held by the account and inserts a new one.
	ReplaceResetCode(userID, codeHash string, expiresAt time.Time) (domain.ResetCode, error)
	// FindResetCode returns the account's code if it has not expired at now.
	FindResetCode(userID string, now time.Time) (domain.ResetCode, bool, error)
	// ConsumeResetCode updates the password and deletes the code in one
	// transaction. It reports false when the code was already gone.
	ConsumeResetCode(codeID, userID, passwordHash string, at time.Time) (bool, error)
	DeleteResetCode(id string) error
	DeleteExpiredResetCodes(now time.Time) (int, error)
}

// DoctorFilter narrows doctor listings. Empty fields match everything.
type DoctorFilter struct {
	Status         domain.VerificationStatus
	Specialization string
	InstitutionID  string
}

// ComplaintFilter narrows complaint listings. Empty fields match everything.
type ComplaintFilter struct {
	UserID string
	Status domain.ComplaintStatus
}

// PortalStore persists everything the portal API reads and writes.
type PortalStore interface {
	// profiles
	SaveProfile(domain.Profile) error
	GetProfile(id string) (domain.Profile, bool, error)
	CountProfilesByRole(role domain.Role) (int, error)

	// doctors
	SaveDoctorProfile(domain.DoctorProfile) error
	GetDoctorProfile(userID string) (domain.DoctorProfile, bool, error)
	ListDoctorProfiles(filter DoctorFilter) ([]domain.DoctorProfile, error)
	CountDoctorProfiles(status domain.VerificationStatus) (int, error)

	// institutions
	SaveInstitution(domain.Institution) error
	GetInstitution(id string) (domain.Institution, bool, error)
	ListInstitutions() ([]domain.Institution, error)

	// appointments
	SaveAppointment(domain.Appointment) error
	GetAppointment(id string) (domain.Appointment, bool, error)
	ListAppointmentsForUser(userID string) ([]domain.Appointment, error)
	CountUpcomingAppointments(now time.Time) (int, error)

	// chat
	// CreateChatSession inserts a new session. It returns ErrDuplicate when
	// the pair already has an active session.
	CreateChatSession(domain.ChatSession) error
	SaveChatSession(domain.ChatSession) error
	GetChatSession(id string) (domain.ChatSession, bool, error)
	FindActiveChatSession(patientID, doctorID string) (domain.ChatSession, bool, error)
	ListChatSessionsForUser(userID string) ([]domain.ChatSession, error)
	CountActiveChatSessions() (int, error)
	AppendChatMessage(domain.ChatMessage) error
	ListChatMessages(sessionID string, limit int) ([]domain.ChatMessage, error)
	MarkChatMessagesRead(sessionID, readerID string, at time.Time) (int, error)

	// complaints
	SaveComplaint(domain.Complaint) error
	GetComplaint(id string) (domain.Complaint, bool, error)
	ListComplaints(filter ComplaintFilter) ([]domain.Complaint, error)
	CountComplaints(status domain.ComplaintStatus) (int, error)

	// medication refills
	SaveRefill(domain.MedicationRefill) error
	GetRefill(id string) (domain.MedicationRefill, bool, error)
	ListRefillsByPatient(patientID string) ([]domain.MedicationRefill, error)
	DeleteRefill(id string) error
	ListDueRefills(now time.Time) ([]domain.MedicationRefill, error)
	MarkRefillReminded(id string, at time.Time) error

	// notifications
	SaveNotification(domain.Notification) error
	ListNotifications(userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkNotificationRead(id, userID string, at time.Time) (bool, error)
	MarkAllNotificationsRead(userID string, at time.Time) (int, error)

	// alerts
	SaveAlert(domain.HealthcareAlert) error
	GetAlert(id string) (domain.HealthcareAlert, bool, error)
	ListAlerts(activeOnly bool) ([]domain.HealthcareAlert, error)
	CountActiveAlerts() (int, error)
}

// Session is the caller identity carried by an access token.
type Session struct {
	UserID    string
	Role      domain.Role
	ExpiresAt time.Time
}

// SessionStore issues and validates access tokens.
type SessionStore interface {
	NewSession(userID string, role domain.Role) (string, error)
	GetSession(token string) (Session, bool, error)
	DeleteSession(token string) error
}

// UserSessionRevoker is an optional capability that revokes all sessions
// issued for a user up to a cutoff time.
type UserSessionRevoker interface {
	RevokeUserSessions(userID string, since time.Time) error
}

// JWK represents a JSON Web Key entry used by JWKS endpoints.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSProvider is an optional capability exposed by session stores that can
// publish JSON Web Keys.
type JWKSProvider interface {
	JWKS() []JWK
}

// dueForReminder reports whether a refill reminder should go out at now.
func dueForReminder(r domain.MedicationRefill, now time.Time) bool {
	if !r.Active {
		return false
	}
	opens := r.ReminderOpensAt()
	if now.Before(opens) {
		return false
	}
	return r.LastRemindedAt == nil || r.LastRemindedAt.Before(opens)
}
