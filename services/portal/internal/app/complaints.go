package app

import (
	"context"
	"fmt"

	"healthconnect/pkg/domain"
	"healthconnect/pkg/store"
)

const (
	minDescriptionRunes = 20
	maxSubjectRunes     = 200
)

// ComplaintInput is a user's complaint. Attachment is optional.
type ComplaintInput struct {
	Subject     string
	Description string
	Category    string
	Attachment  *Upload
}

// ComplaintReview is a complaint as shown to admins.
type ComplaintReview struct {
	domain.Complaint
	AttachmentURL string `json:"attachmentUrl,omitempty"`
}

// FileComplaint records a complaint and stores its attachment in the
// complaint-attachments bucket.
func (a *App) FileComplaint(ctx context.Context, actor Actor, in ComplaintInput) (domain.Complaint, error) {
	subject, n := cleanText(in.Subject)
	if n == 0 {
		return domain.Complaint{}, ErrSubjectRequired
	}
	if n > maxSubjectRunes {
		return domain.Complaint{}, ErrSubjectTooLong
	}
	description, n := cleanText(in.Description)
	if n < minDescriptionRunes {
		return domain.Complaint{}, ErrDescriptionTooShort
	}
	category, _ := cleanText(in.Category)

	var key string
	if in.Attachment != nil {
		data, err := readUpload(*in.Attachment, a.maxDocBody)
		if err != nil {
			return domain.Complaint{}, err
		}
		contentType, ext, ok := sniff(data, attachmentTypes)
		if !ok {
			return domain.Complaint{}, ErrAttachmentType
		}
		key, err = a.putObject(ctx, a.buckets.ComplaintAttachments, actor.UserID, ext, contentType, data)
		if err != nil {
			return domain.Complaint{}, err
		}
	}
	now := a.now()
	c := domain.Complaint{
		ID:            newID(),
		UserID:        actor.UserID,
		Subject:       subject,
		Description:   description,
		Category:      category,
		AttachmentKey: key,
		HasAttachment: key != "",
		Status:        domain.ComplaintOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.SaveComplaint(c); err != nil {
		a.deleteObject(ctx, a.buckets.ComplaintAttachments, key)
		return domain.Complaint{}, fmt.Errorf("save complaint: %w", err)
	}
	return c, nil
}

// ListMyComplaints returns the caller's complaints, newest first.
func (a *App) ListMyComplaints(actor Actor) ([]domain.Complaint, error) {
	return a.store.ListComplaints(store.ComplaintFilter{UserID: actor.UserID})
}

// ListComplaintsForReview returns complaints in status, or all when empty.
func (a *App) ListComplaintsForReview(ctx context.Context, actor Actor, status string) ([]ComplaintReview, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	filter := store.ComplaintFilter{}
	if status = trimmed(status); status != "" {
		parsed, ok := ParseComplaintStatus(status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		filter.Status = parsed
	}
	complaints, err := a.store.ListComplaints(filter)
	if err != nil {
		return nil, fmt.Errorf("list complaints: %w", err)
	}
	out := make([]ComplaintReview, 0, len(complaints))
	for _, c := range complaints {
		out = append(out, ComplaintReview{Complaint: c, AttachmentURL: a.presign(ctx, a.buckets.ComplaintAttachments, c.AttachmentKey)})
	}
	return out, nil
}

// RespondToComplaint sets a complaint's status and admin response and
// notifies the complainant. Resolving requires a response.
func (a *App) RespondToComplaint(ctx context.Context, actor Actor, id string, status domain.ComplaintStatus, response string) (domain.Complaint, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.Complaint{}, err
	}
	c, ok, err := a.store.GetComplaint(trimmed(id))
	if err != nil {
		return domain.Complaint{}, fmt.Errorf("fetch complaint: %w", err)
	}
	if !ok {
		return domain.Complaint{}, notFound("complaint")
	}
	if response, _ = cleanText(response); response != "" {
		c.AdminResponse = response
	}
	if status == domain.ComplaintResolved && c.AdminResponse == "" {
		return domain.Complaint{}, ErrResponseRequired
	}
	c.Status = status
	c.UpdatedAt = a.now()
	if err := a.store.SaveComplaint(c); err != nil {
		return domain.Complaint{}, fmt.Errorf("save complaint: %w", err)
	}
	a.notifier.NotifyQuietly(ctx, c.UserID, domain.NotifyComplaint,
		"Complaint update: "+c.Subject,
		"Your complaint is now "+humanComplaintStatus(status)+".",
		map[string]string{"complaintId": c.ID, "status": string(status)})
	return c, nil
}

// ParseComplaintStatus accepts one of the complaint status names.
func ParseComplaintStatus(raw string) (domain.ComplaintStatus, bool) {
	switch s := domain.ComplaintStatus(trimmed(raw)); s {
	case domain.ComplaintOpen, domain.ComplaintInReview, domain.ComplaintResolved:
		return s, true
	default:
		return "", false
	}
}

func humanComplaintStatus(s domain.ComplaintStatus) string {
	if s == domain.ComplaintInReview {
		return "in review"
	}
	return string(s)
}
