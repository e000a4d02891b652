package app

import (
	"context"
	"errors"
	"fmt"

	"healthconnect/pkg/domain"
	"healthconnect/pkg/store"
)

// DoctorProfileInput is a doctor's own profile submission.
type DoctorProfileInput struct {
	Specialization  string
	LicenseNumber   string
	InstitutionID   string
	YearsExperience int
	Bio             string
}

// DoctorReview is a doctor profile as shown to admins, with a short-lived
// link to the verification document.
type DoctorReview struct {
	domain.DoctorProfile
	DocumentURL string `json:"documentUrl,omitempty"`
}

// ListApprovedDoctors returns the doctors patients may book or chat with.
func (a *App) ListApprovedDoctors(specialization, institutionID string) ([]domain.DoctorProfile, error) {
	return a.store.ListDoctorProfiles(store.DoctorFilter{
		Status:         domain.VerificationApproved,
		Specialization: trimmed(specialization),
		InstitutionID:  trimmed(institutionID),
	})
}

// GetApprovedDoctor returns one approved doctor.
func (a *App) GetApprovedDoctor(doctorID string) (domain.DoctorProfile, error) {
	doc, ok, err := a.store.GetDoctorProfile(doctorID)
	if err != nil {
		return domain.DoctorProfile{}, fmt.Errorf("fetch doctor: %w", err)
	}
	if !ok || doc.VerificationStatus != domain.VerificationApproved {
		return domain.DoctorProfile{}, notFound("doctor")
	}
	return doc, nil
}

// GetOwnDoctorProfile returns the calling doctor's profile in any status.
func (a *App) GetOwnDoctorProfile(actor Actor) (domain.DoctorProfile, error) {
	if err := requireRole(actor, domain.RoleDoctor); err != nil {
		return domain.DoctorProfile{}, err
	}
	doc, ok, err := a.store.GetDoctorProfile(actor.UserID)
	if err != nil {
		return domain.DoctorProfile{}, fmt.Errorf("fetch doctor: %w", err)
	}
	if !ok {
		return domain.DoctorProfile{}, notFound("doctor profile")
	}
	return doc, nil
}

// SaveDoctorProfile creates or edits the calling doctor's profile. New
// profiles, resubmissions after rejection and license changes go back to
// pending review.
func (a *App) SaveDoctorProfile(actor Actor, in DoctorProfileInput) (domain.DoctorProfile, error) {
	if err := requireRole(actor, domain.RoleDoctor); err != nil {
		return domain.DoctorProfile{}, err
	}
	specialization, _ := cleanText(in.Specialization)
	if specialization == "" {
		return domain.DoctorProfile{}, ErrSpecialization
	}
	license := trimmed(in.LicenseNumber)
	if license == "" {
		return domain.DoctorProfile{}, ErrLicenseRequired
	}
	if in.YearsExperience < 0 || in.YearsExperience > 70 {
		return domain.DoctorProfile{}, ErrYearsExperience
	}
	institutionID := trimmed(in.InstitutionID)
	if institutionID != "" {
		_, ok, err := a.store.GetInstitution(institutionID)
		if err != nil {
			return domain.DoctorProfile{}, fmt.Errorf("fetch institution: %w", err)
		}
		if !ok {
			return domain.DoctorProfile{}, ErrUnknownInstitution
		}
	}
	bio, _ := cleanText(in.Bio)

	now := a.now()
	doc, exists, err := a.store.GetDoctorProfile(actor.UserID)
	if err != nil {
		return domain.DoctorProfile{}, fmt.Errorf("fetch doctor: %w", err)
	}
	if !exists {
		doc = domain.DoctorProfile{
			UserID:             actor.UserID,
			VerificationStatus: domain.VerificationPending,
			CreatedAt:          now,
		}
	}
	if exists && (doc.VerificationStatus == domain.VerificationRejected || doc.LicenseNumber != license) {
		resetReview(&doc)
	}
	doc.Specialization = specialization
	doc.LicenseNumber = license
	doc.InstitutionID = institutionID
	doc.YearsExperience = in.YearsExperience
	doc.Bio = bio
	doc.UpdatedAt = now
	if err := a.store.SaveDoctorProfile(doc); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.DoctorProfile{}, ErrLicenseInUse
		}
		return domain.DoctorProfile{}, fmt.Errorf("save doctor profile: %w", err)
	}
	return a.GetOwnDoctorProfile(actor)
}

// UploadDoctorDocument stores the calling doctor's verification PDF and puts
// the profile back into pending review.
func (a *App) UploadDoctorDocument(ctx context.Context, actor Actor, upload Upload) (domain.DoctorProfile, error) {
	if err := requireRole(actor, domain.RoleDoctor); err != nil {
		return domain.DoctorProfile{}, err
	}
	doc, ok, err := a.store.GetDoctorProfile(actor.UserID)
	if err != nil {
		return domain.DoctorProfile{}, fmt.Errorf("fetch doctor: %w", err)
	}
	if !ok {
		return domain.DoctorProfile{}, ErrDoctorProfileMissing
	}
	data, err := readUpload(upload, a.maxDocBody)
	if err != nil {
		return domain.DoctorProfile{}, err
	}
	pages, err := checkPDF(data)
	if err != nil {
		return domain.DoctorProfile{}, err
	}
	key, err := a.putObject(ctx, a.buckets.DoctorDocuments, actor.UserID, ".pdf", "application/pdf", data)
	if err != nil {
		return domain.DoctorProfile{}, err
	}
	previous := doc.DocumentKey
	doc.DocumentKey = key
	resetReview(&doc)
	doc.UpdatedAt = a.now()
	if err := a.store.SaveDoctorProfile(doc); err != nil {
		a.deleteObject(ctx, a.buckets.DoctorDocuments, key)
		return domain.DoctorProfile{}, fmt.Errorf("save doctor profile: %w", err)
	}
	a.deleteObject(ctx, a.buckets.DoctorDocuments, previous)
	a.logger.Info("doctor_document_uploaded", "doctor_id", actor.UserID, "pages", pages, "bytes", len(data))
	return a.GetOwnDoctorProfile(actor)
}

// ListDoctorsForReview returns doctor profiles in status, or all when empty.
func (a *App) ListDoctorsForReview(ctx context.Context, actor Actor, status string) ([]DoctorReview, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	filter := store.DoctorFilter{}
	if status = trimmed(status); status != "" {
		parsed, ok := parseVerificationStatus(status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		filter.Status = parsed
	}
	docs, err := a.store.ListDoctorProfiles(filter)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	out := make([]DoctorReview, 0, len(docs))
	for _, d := range docs {
		out = append(out, DoctorReview{DoctorProfile: d, DocumentURL: a.presign(ctx, a.buckets.DoctorDocuments, d.DocumentKey)})
	}
	return out, nil
}

// ApproveDoctor marks a doctor verified and notifies them.
func (a *App) ApproveDoctor(ctx context.Context, actor Actor, doctorID string) (domain.DoctorProfile, error) {
	doc, err := a.reviewTarget(actor, doctorID)
	if err != nil {
		return domain.DoctorProfile{}, err
	}
	if !doc.HasDocument {
		return domain.DoctorProfile{}, ErrDocumentRequired
	}
	doc = a.recordReview(doc, actor, domain.VerificationApproved, "")
	if err := a.store.SaveDoctorProfile(doc); err != nil {
		return domain.DoctorProfile{}, fmt.Errorf("save doctor profile: %w", err)
	}
	a.notifier.NotifyQuietly(ctx, doc.UserID, domain.NotifyVerification,
		"Your profile has been verified",
		"Patients can now find you and book appointments.",
		map[string]string{"status": string(doc.VerificationStatus)})
	return doc, nil
}

// RejectDoctor marks a doctor rejected with a reason and notifies them.
func (a *App) RejectDoctor(ctx context.Context, actor Actor, doctorID, reason string) (domain.DoctorProfile, error) {
	doc, err := a.reviewTarget(actor, doctorID)
	if err != nil {
		return domain.DoctorProfile{}, err
	}
	reason, _ = cleanText(reason)
	if reason == "" {
		return domain.DoctorProfile{}, ErrRejectionReason
	}
	doc = a.recordReview(doc, actor, domain.VerificationRejected, reason)
	if err := a.store.SaveDoctorProfile(doc); err != nil {
		return domain.DoctorProfile{}, fmt.Errorf("save doctor profile: %w", err)
	}
	a.notifier.NotifyQuietly(ctx, doc.UserID, domain.NotifyVerification,
		"Your profile verification was rejected",
		reason,
		map[string]string{"status": string(doc.VerificationStatus)})
	return doc, nil
}

func (a *App) reviewTarget(actor Actor, doctorID string) (domain.DoctorProfile, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.DoctorProfile{}, err
	}
	doc, ok, err := a.store.GetDoctorProfile(trimmed(doctorID))
	if err != nil {
		return domain.DoctorProfile{}, fmt.Errorf("fetch doctor: %w", err)
	}
	if !ok {
		return domain.DoctorProfile{}, notFound("doctor")
	}
	return doc, nil
}

func (a *App) recordReview(doc domain.DoctorProfile, actor Actor, status domain.VerificationStatus, reason string) domain.DoctorProfile {
	now := a.now()
	doc.VerificationStatus = status
	doc.RejectionReason = reason
	doc.ReviewedBy = actor.UserID
	doc.ReviewedAt = &now
	doc.UpdatedAt = now
	return doc
}

func resetReview(doc *domain.DoctorProfile) {
	doc.VerificationStatus = domain.VerificationPending
	doc.RejectionReason = ""
	doc.ReviewedBy = ""
	doc.ReviewedAt = nil
}

func parseVerificationStatus(raw string) (domain.VerificationStatus, bool) {
	switch domain.VerificationStatus(raw) {
	case domain.VerificationPending, domain.VerificationApproved, domain.VerificationRejected:
		return domain.VerificationStatus(raw), true
	default:
		return "", false
	}
}
