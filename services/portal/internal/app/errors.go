package app

import "errors"

// InputError is a validation failure whose message is safe to show to users.
type InputError struct {
	msg string
}

func (e *InputError) Error() string { return e.msg }

func inputError(msg string) *InputError { return &InputError{msg: msg} }

var (
	// ErrNotFound is wrapped by lookups of missing or foreign records.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller's role may not perform the action.
	ErrForbidden = errors.New("forbidden")

	ErrInvalidTransition = errors.New("appointment status change not allowed")
	ErrChatClosed        = errors.New("chat session is closed")
	ErrLicenseInUse      = errors.New("license number is already registered")
	ErrInstitutionExists = errors.New("institution already exists")
)

var (
	ErrFullNameRequired     = inputError("full name is required")
	ErrPhoneInvalid         = inputError("phone number is invalid")
	ErrFileRequired         = inputError("file is required")
	ErrFileTooLarge         = inputError("file is too large")
	ErrImageType            = inputError("photo must be a JPEG, PNG or WebP image")
	ErrAttachmentType       = inputError("attachment must be a PDF, JPEG or PNG file")
	ErrNotPDF               = inputError("document must be a readable PDF")
	ErrInstitutionName      = inputError("institution name is required")
	ErrSpecialization       = inputError("specialization is required")
	ErrLicenseRequired      = inputError("license number is required")
	ErrYearsExperience      = inputError("years of experience must be between 0 and 70")
	ErrUnknownInstitution   = inputError("institution does not exist")
	ErrDoctorProfileMissing = inputError("complete your doctor profile first")
	ErrDocumentRequired     = inputError("doctor has not uploaded a verification document")
	ErrRejectionReason      = inputError("rejection reason is required")
	ErrDoctorUnavailable    = inputError("doctor is not available for booking")
	ErrScheduleInPast       = inputError("appointment time must be in the future")
	ErrReasonTooShort       = inputError("reason must be at least 10 characters")
	ErrInvalidStatus        = inputError("invalid status")
	ErrCounterpartInvalid   = inputError("chat counterpart is not available")
	ErrMessageEmpty         = inputError("message content is required")
	ErrMessageTooLong       = inputError("message must be at most 2000 characters")
	ErrSubjectRequired      = inputError("subject is required")
	ErrSubjectTooLong       = inputError("subject must be at most 200 characters")
	ErrDescriptionTooShort  = inputError("description must be at least 20 characters")
	ErrResponseRequired     = inputError("a response is required to resolve a complaint")
	ErrMedicationName       = inputError("medication name is required")
	ErrFrequencyDays        = inputError("frequency must be between 1 and 365 days")
	ErrRemindDaysBefore     = inputError("reminder lead time must be between 0 and 30 days")
	ErrNextRefillDate       = inputError("next refill date is required and must not be in the past")
	ErrAlertTitle           = inputError("alert title is required")
	ErrAlertMessage         = inputError("alert message is required")
	ErrAlertSeverity        = inputError("severity must be info, warning or critical")
)
