package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"healthconnect/pkg/domain"
)

const minReasonRunes = 10

// AppointmentInput is a patient's booking request.
type AppointmentInput struct {
	DoctorID    string
	ScheduledAt time.Time
	Reason      string
}

// AppointmentList splits the caller's appointments for display.
type AppointmentList struct {
	Upcoming []domain.Appointment `json:"upcoming"`
	Past     []domain.Appointment `json:"past"`
}

// BookAppointment creates a pending appointment with an approved doctor.
func (a *App) BookAppointment(ctx context.Context, actor Actor, in AppointmentInput) (domain.Appointment, error) {
	if err := requireRole(actor, domain.RolePatient); err != nil {
		return domain.Appointment{}, err
	}
	doc, ok, err := a.store.GetDoctorProfile(trimmed(in.DoctorID))
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("fetch doctor: %w", err)
	}
	if !ok || doc.VerificationStatus != domain.VerificationApproved {
		return domain.Appointment{}, ErrDoctorUnavailable
	}
	now := a.now()
	if in.ScheduledAt.IsZero() || !in.ScheduledAt.After(now) {
		return domain.Appointment{}, ErrScheduleInPast
	}
	reason, n := cleanText(in.Reason)
	if n < minReasonRunes {
		return domain.Appointment{}, ErrReasonTooShort
	}
	appt := domain.Appointment{
		ID:          newID(),
		PatientID:   actor.UserID,
		DoctorID:    doc.UserID,
		ScheduledAt: in.ScheduledAt.UTC(),
		Reason:      reason,
		Status:      domain.AppointmentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveAppointment(appt); err != nil {
		return domain.Appointment{}, fmt.Errorf("save appointment: %w", err)
	}
	a.notifier.NotifyQuietly(ctx, appt.DoctorID, domain.NotifyAppointment,
		"New appointment request",
		"A patient requested an appointment on "+appt.ScheduledAt.Format(time.RFC1123)+".",
		map[string]string{"appointmentId": appt.ID})
	return appt, nil
}

// ListAppointments returns the caller's appointments as patient or doctor.
// Upcoming holds future pending or confirmed visits, soonest first; Past
// holds the rest, most recent first.
func (a *App) ListAppointments(actor Actor) (AppointmentList, error) {
	all, err := a.store.ListAppointmentsForUser(actor.UserID)
	if err != nil {
		return AppointmentList{}, fmt.Errorf("list appointments: %w", err)
	}
	now := a.now()
	out := AppointmentList{Upcoming: []domain.Appointment{}, Past: []domain.Appointment{}}
	for _, appt := range all {
		open := appt.Status == domain.AppointmentPending || appt.Status == domain.AppointmentConfirmed
		if open && !appt.ScheduledAt.Before(now) {
			out.Upcoming = append(out.Upcoming, appt)
		} else {
			out.Past = append(out.Past, appt)
		}
	}
	sort.SliceStable(out.Upcoming, func(i, j int) bool { return out.Upcoming[i].ScheduledAt.Before(out.Upcoming[j].ScheduledAt) })
	sort.SliceStable(out.Past, func(i, j int) bool { return out.Past[i].ScheduledAt.After(out.Past[j].ScheduledAt) })
	return out, nil
}

// UpdateAppointmentStatus applies a status change. Doctors confirm pending
// and complete confirmed appointments; either party cancels pending or
// confirmed ones. The other party is notified.
func (a *App) UpdateAppointmentStatus(ctx context.Context, actor Actor, id string, status domain.AppointmentStatus, notes string) (domain.Appointment, error) {
	appt, ok, err := a.store.GetAppointment(trimmed(id))
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("fetch appointment: %w", err)
	}
	if !ok || (appt.PatientID != actor.UserID && appt.DoctorID != actor.UserID) {
		return domain.Appointment{}, notFound("appointment")
	}
	isDoctor := appt.DoctorID == actor.UserID
	if !allowedTransition(appt.Status, status, isDoctor) {
		return domain.Appointment{}, ErrInvalidTransition
	}
	appt.Status = status
	if notes, _ = cleanText(notes); notes != "" && isDoctor {
		appt.Notes = notes
	}
	appt.UpdatedAt = a.now()
	if err := a.store.SaveAppointment(appt); err != nil {
		return domain.Appointment{}, fmt.Errorf("save appointment: %w", err)
	}
	other := appt.PatientID
	if !isDoctor {
		other = appt.DoctorID
	}
	a.notifier.NotifyQuietly(ctx, other, domain.NotifyAppointment,
		"Appointment "+string(status),
		"Your appointment on "+appt.ScheduledAt.Format(time.RFC1123)+" is now "+string(status)+".",
		map[string]string{"appointmentId": appt.ID, "status": string(status)})
	return appt, nil
}

func allowedTransition(from, to domain.AppointmentStatus, isDoctor bool) bool {
	switch to {
	case domain.AppointmentConfirmed:
		return isDoctor && from == domain.AppointmentPending
	case domain.AppointmentCompleted:
		return isDoctor && from == domain.AppointmentConfirmed
	case domain.AppointmentCancelled:
		return from == domain.AppointmentPending || from == domain.AppointmentConfirmed
	default:
		return false
	}
}

// ParseAppointmentStatus accepts one of the appointment status names.
func ParseAppointmentStatus(raw string) (domain.AppointmentStatus, bool) {
	switch s := domain.AppointmentStatus(trimmed(raw)); s {
	case domain.AppointmentPending, domain.AppointmentConfirmed, domain.AppointmentCompleted, domain.AppointmentCancelled:
		return s, true
	default:
		return "", false
	}
}
