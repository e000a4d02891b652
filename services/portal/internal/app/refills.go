package app

import (
	"fmt"
	"time"

	"healthconnect/pkg/domain"
)

const defaultRemindDaysBefore = 3

// RefillInput creates a medication refill schedule.
type RefillInput struct {
	MedicationName   string
	Dosage           string
	FrequencyDays    int
	NextRefillDate   time.Time
	RemindDaysBefore *int
}

// RefillPatch edits a refill schedule. Nil fields are unchanged.
type RefillPatch struct {
	MedicationName   *string
	Dosage           *string
	FrequencyDays    *int
	NextRefillDate   *time.Time
	RemindDaysBefore *int
	Active           *bool
}

// ListRefills returns the calling patient's refill schedules.
func (a *App) ListRefills(actor Actor) ([]domain.MedicationRefill, error) {
	if err := requireRole(actor, domain.RolePatient); err != nil {
		return nil, err
	}
	return a.store.ListRefillsByPatient(actor.UserID)
}

// CreateRefill adds a refill schedule for the calling patient.
func (a *App) CreateRefill(actor Actor, in RefillInput) (domain.MedicationRefill, error) {
	if err := requireRole(actor, domain.RolePatient); err != nil {
		return domain.MedicationRefill{}, err
	}
	remind := defaultRemindDaysBefore
	if in.RemindDaysBefore != nil {
		remind = *in.RemindDaysBefore
	}
	now := a.now()
	r := domain.MedicationRefill{
		ID:               newID(),
		PatientID:        actor.UserID,
		FrequencyDays:    in.FrequencyDays,
		NextRefillDate:   dateOf(in.NextRefillDate),
		RemindDaysBefore: remind,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.MedicationName, _ = cleanText(in.MedicationName)
	r.Dosage, _ = cleanText(in.Dosage)
	if err := a.validateRefill(r, true); err != nil {
		return domain.MedicationRefill{}, err
	}
	if err := a.store.SaveRefill(r); err != nil {
		return domain.MedicationRefill{}, fmt.Errorf("save refill: %w", err)
	}
	return r, nil
}

// UpdateRefill edits one of the calling patient's refill schedules.
func (a *App) UpdateRefill(actor Actor, id string, patch RefillPatch) (domain.MedicationRefill, error) {
	r, err := a.ownRefill(actor, id)
	if err != nil {
		return domain.MedicationRefill{}, err
	}
	dateChanged := false
	if patch.MedicationName != nil {
		r.MedicationName, _ = cleanText(*patch.MedicationName)
	}
	if patch.Dosage != nil {
		r.Dosage, _ = cleanText(*patch.Dosage)
	}
	if patch.FrequencyDays != nil {
		r.FrequencyDays = *patch.FrequencyDays
	}
	if patch.NextRefillDate != nil {
		r.NextRefillDate = dateOf(*patch.NextRefillDate)
		dateChanged = true
	}
	if patch.RemindDaysBefore != nil {
		r.RemindDaysBefore = *patch.RemindDaysBefore
	}
	if patch.Active != nil {
		r.Active = *patch.Active
	}
	if err := a.validateRefill(r, dateChanged); err != nil {
		return domain.MedicationRefill{}, err
	}
	r.UpdatedAt = a.now()
	if err := a.store.SaveRefill(r); err != nil {
		return domain.MedicationRefill{}, fmt.Errorf("save refill: %w", err)
	}
	return r, nil
}

// DeleteRefill removes one of the calling patient's refill schedules.
func (a *App) DeleteRefill(actor Actor, id string) error {
	r, err := a.ownRefill(actor, id)
	if err != nil {
		return err
	}
	return a.store.DeleteRefill(r.ID)
}

// MarkRefilled records a refill and moves the next refill date forward by
// the schedule's frequency.
func (a *App) MarkRefilled(actor Actor, id string) (domain.MedicationRefill, error) {
	r, err := a.ownRefill(actor, id)
	if err != nil {
		return domain.MedicationRefill{}, err
	}
	r.NextRefillDate = r.NextRefillDate.AddDate(0, 0, r.FrequencyDays)
	r.UpdatedAt = a.now()
	if err := a.store.SaveRefill(r); err != nil {
		return domain.MedicationRefill{}, fmt.Errorf("save refill: %w", err)
	}
	return r, nil
}

func (a *App) ownRefill(actor Actor, id string) (domain.MedicationRefill, error) {
	if err := requireRole(actor, domain.RolePatient); err != nil {
		return domain.MedicationRefill{}, err
	}
	r, ok, err := a.store.GetRefill(trimmed(id))
	if err != nil {
		return domain.MedicationRefill{}, fmt.Errorf("fetch refill: %w", err)
	}
	if !ok || r.PatientID != actor.UserID {
		return domain.MedicationRefill{}, notFound("refill")
	}
	return r, nil
}

func (a *App) validateRefill(r domain.MedicationRefill, checkDate bool) error {
	switch {
	case r.MedicationName == "":
		return ErrMedicationName
	case r.FrequencyDays < 1 || r.FrequencyDays > 365:
		return ErrFrequencyDays
	case r.RemindDaysBefore < 0 || r.RemindDaysBefore > 30:
		return ErrRemindDaysBefore
	case r.NextRefillDate.IsZero():
		return ErrNextRefillDate
	case checkDate && r.NextRefillDate.Before(dateOf(a.now())):
		return ErrNextRefillDate
	}
	return nil
}

// dateOf truncates t to midnight UTC of its calendar day.
func dateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
