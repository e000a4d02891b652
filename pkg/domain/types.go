package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// ParseRole accepts a role name in any case.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RolePatient:
		return RolePatient, true
	case RoleDoctor:
		return RoleDoctor, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountDisabled AccountStatus = "disabled"
)

// Account is the credential record owned by the auth service.
type Account struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	Role         Role          `json:"role"`
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// AdminUser marks an account as allowed to use the admin portal.
type AdminUser struct {
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ResetCode is a pending password-reset one-time code. Only the hash is kept.
type ResetCode struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CodeHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	AvatarKey string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

type DoctorProfile struct {
	UserID             string             `json:"userId"`
	FullName           string             `json:"fullName,omitempty"`
	Specialization     string             `json:"specialization"`
	LicenseNumber      string             `json:"licenseNumber"`
	InstitutionID      string             `json:"institutionId,omitempty"`
	YearsExperience    int                `json:"yearsExperience"`
	Bio                string             `json:"bio,omitempty"`
	DocumentKey        string             `json:"-"`
	HasDocument        bool               `json:"hasDocument"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	RejectionReason    string             `json:"rejectionReason,omitempty"`
	ReviewedBy         string             `json:"reviewedBy,omitempty"`
	ReviewedAt         *time.Time         `json:"reviewedAt,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

type Institution struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

type Appointment struct {
	ID          string            `json:"id"`
	PatientID   string            `json:"patientId"`
	DoctorID    string            `json:"doctorId"`
	ScheduledAt time.Time         `json:"scheduledAt"`
	Reason      string            `json:"reason"`
	Status      AppointmentStatus `json:"status"`
	Notes       string            `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type ChatStatus string

const (
	ChatActive ChatStatus = "active"
	ChatClosed ChatStatus = "closed"
)

type ChatSession struct {
	ID            string     `json:"id"`
	PatientID     string     `json:"patientId"`
	DoctorID      string     `json:"doctorId"`
	Status        ChatStatus `json:"status"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// HasParticipant reports whether userID is the patient or doctor of the session.
func (c ChatSession) HasParticipant(userID string) bool {
	return userID != "" && (c.PatientID == userID || c.DoctorID == userID)
}

// Counterpart returns the other participant.
func (c ChatSession) Counterpart(userID string) string {
	if c.PatientID == userID {
		return c.DoctorID
	}
	return c.PatientID
}

type ChatMessage struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	SenderID  string     `json:"senderId"`
	Content   string     `json:"content"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type ComplaintStatus string

const (
	ComplaintOpen     ComplaintStatus = "open"
	ComplaintInReview ComplaintStatus = "in_review"
	ComplaintResolved ComplaintStatus = "resolved"
)

type Complaint struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Subject       string          `json:"subject"`
	Description   string          `json:"description"`
	Category      string          `json:"category,omitempty"`
	AttachmentKey string          `json:"-"`
	HasAttachment bool            `json:"hasAttachment"`
	Status        ComplaintStatus `json:"status"`
	AdminResponse string          `json:"adminResponse,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type MedicationRefill struct {
	ID               string     `json:"id"`
	PatientID        string     `json:"patientId"`
	MedicationName   string     `json:"medicationName"`
	Dosage           string     `json:"dosage,omitempty"`
	FrequencyDays    int        `json:"frequencyDays"`
	NextRefillDate   time.Time  `json:"nextRefillDate"`
	RemindDaysBefore int        `json:"remindDaysBefore"`
	LastRemindedAt   *time.Time `json:"lastRemindedAt,omitempty"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// ReminderOpensAt is the first day a reminder may be sent for the current refill.
func (m MedicationRefill) ReminderOpensAt() time.Time {
	return m.NextRefillDate.AddDate(0, 0, -m.RemindDaysBefore)
}

type NotificationKind string

const (
	NotifyAppointment  NotificationKind = "appointment"
	NotifyChat         NotificationKind = "chat"
	NotifyComplaint    NotificationKind = "complaint"
	NotifyVerification NotificationKind = "verification"
	NotifyRefill       NotificationKind = "refill"
	NotifyAlert        NotificationKind = "alert"
)

type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Kind      NotificationKind  `json:"kind"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	ReadAt    *time.Time        `json:"readAt,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

type HealthcareAlert struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Severity  AlertSeverity `json:"severity"`
	Regions   []string      `json:"regions,omitempty"`
	Active    bool          `json:"active"`
	CreatedBy string        `json:"createdBy"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// AdminStats is the admin dashboard summary.
type AdminStats struct {
	Patients           int `json:"patients"`
	Doctors            int `json:"doctors"`
	PendingDoctors     int `json:"pendingDoctors"`
	OpenComplaints     int `json:"openComplaints"`
	UpcomingAppts      int `json:"upcomingAppointments"`
	ActiveAlerts       int `json:"activeAlerts"`
	ActiveChatSessions int `json:"activeChatSessions"`
}
