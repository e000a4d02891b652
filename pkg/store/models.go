package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Table names are part of the external
// interface shared with the existing database.
type AccountModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	Status       string `gorm:"not null;default:active"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

func (AccountModel) TableName() string { return "accounts" }

type AdminUserModel struct {
	UserID    string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

func (AdminUserModel) TableName() string { return "admin_users" }

type ResetCodeModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"uniqueIndex;not null"`
	CodeHash  string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ResetCodeModel) TableName() string { return "password_reset_codes" }

type ProfileModel struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex;not null"`
	FullName  string `gorm:"not null"`
	Phone     string
	Role      string `gorm:"not null;index"`
	AvatarKey string
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

func (ProfileModel) TableName() string { return "profiles" }

type DoctorProfileModel struct {
	UserID             string `gorm:"primaryKey"`
	Specialization     string `gorm:"not null;index"`
	LicenseNumber      string `gorm:"uniqueIndex;not null"`
	InstitutionID      *string `gorm:"index"`
	YearsExperience    int
	Bio                string `gorm:"type:text"`
	DocumentKey        string
	VerificationStatus string `gorm:"not null;index"`
	RejectionReason    string
	ReviewedBy         string
	ReviewedAt         *time.Time
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time
}

func (DoctorProfileModel) TableName() string { return "doctor_profiles" }

type InstitutionModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Address   string
	City      string
	Phone     string
	CreatedAt time.Time `gorm:"not null"`
}

func (InstitutionModel) TableName() string { return "healthcare_institutions" }

type AppointmentModel struct {
	ID          string    `gorm:"primaryKey"`
	PatientID   string    `gorm:"not null;index"`
	DoctorID    string    `gorm:"not null;index"`
	ScheduledAt time.Time `gorm:"not null;index"`
	Reason      string    `gorm:"type:text;not null"`
	Status      string    `gorm:"not null;index"`
	Notes       string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

func (AppointmentModel) TableName() string { return "appointments" }

type ChatSessionModel struct {
	ID            string `gorm:"primaryKey"`
	PatientID     string `gorm:"not null;index:idx_chat_pair;uniqueIndex:idx_chat_active_pair,where:status = 'active'"`
	DoctorID      string `gorm:"not null;index:idx_chat_pair;uniqueIndex:idx_chat_active_pair,where:status = 'active'"`
	Status        string `gorm:"not null;index"`
	LastMessageAt *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time
}

func (ChatSessionModel) TableName() string { return "chat_sessions" }

type ChatMessageModel struct {
	ID        string    `gorm:"primaryKey"`
	SessionID string    `gorm:"not null;index"`
	SenderID  string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	ReadAt    *time.Time
	CreatedAt time.Time `gorm:"not null;index"`
}

func (ChatMessageModel) TableName() string { return "chat_messages" }

type ComplaintModel struct {
	ID            string `gorm:"primaryKey"`
	UserID        string `gorm:"not null;index"`
	Subject       string `gorm:"not null"`
	Description   string `gorm:"type:text;not null"`
	Category      string
	AttachmentKey string
	Status        string `gorm:"not null;index"`
	AdminResponse string `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time
}

func (ComplaintModel) TableName() string { return "complaints" }

type MedicationRefillModel struct {
	ID               string `gorm:"primaryKey"`
	PatientID        string `gorm:"not null;index"`
	MedicationName   string `gorm:"not null"`
	Dosage           string
	FrequencyDays    int       `gorm:"not null"`
	NextRefillDate   time.Time `gorm:"not null;index"`
	RemindDaysBefore int       `gorm:"not null"`
	LastRemindedAt   *time.Time
	Active           bool      `gorm:"not null;index"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time
}

func (MedicationRefillModel) TableName() string { return "medication_refills" }

type NotificationModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Kind      string `gorm:"not null"`
	Title     string `gorm:"not null"`
	Body      string `gorm:"type:text"`
	Data      datatypes.JSON `gorm:"type:jsonb"`
	ReadAt    *time.Time     `gorm:"index"`
	CreatedAt time.Time      `gorm:"not null;index"`
}

func (NotificationModel) TableName() string { return "notifications" }

type HealthcareAlertModel struct {
	ID        string `gorm:"primaryKey"`
	Title     string `gorm:"not null"`
	Message   string `gorm:"type:text;not null"`
	Severity  string `gorm:"not null"`
	Regions   datatypes.JSON `gorm:"type:jsonb"`
	Active    bool           `gorm:"not null;index"`
	CreatedBy string         `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null;index"`
	UpdatedAt time.Time
}

func (HealthcareAlertModel) TableName() string { return "healthcare_alerts" }
