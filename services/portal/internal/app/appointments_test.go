package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthconnect/pkg/domain"
)

func TestBookAppointmentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patient := env.user(t, domain.RolePatient, "Pat")
	doctor := env.approvedDoctor(t, "Dr Who", "General")
	unverified := env.user(t, domain.RoleDoctor, "Dr Pending")
	soon := time.Now().UTC().Add(48 * time.Hour)

	cases := []struct {
		name  string
		actor Actor
		in    AppointmentInput
		want  error
	}{
		{"doctor cannot book", doctor, AppointmentInput{DoctorID: doctor.UserID, ScheduledAt: soon, Reason: "Annual checkup"}, ErrForbidden},
		{"unverified doctor", patient, AppointmentInput{DoctorID: unverified.UserID, ScheduledAt: soon, Reason: "Annual checkup"}, ErrDoctorUnavailable},
		{"past time", patient, AppointmentInput{DoctorID: doctor.UserID, ScheduledAt: time.Now().Add(-time.Hour), Reason: "Annual checkup"}, ErrScheduleInPast},
		{"short reason", patient, AppointmentInput{DoctorID: doctor.UserID, ScheduledAt: soon, Reason: "flu"}, ErrReasonTooShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.app.BookAppointment(ctx, tc.actor, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAppointmentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patient := env.user(t, domain.RolePatient, "Pat")
	doctor := env.approvedDoctor(t, "Dr Who", "General")
	stranger := env.user(t, domain.RolePatient, "Stranger")

	appt, err := env.app.BookAppointment(ctx, patient, AppointmentInput{
		DoctorID:    doctor.UserID,
		ScheduledAt: time.Now().UTC().Add(72 * time.Hour),
		Reason:      "Persistent headaches",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentPending, appt.Status)

	notes := env.notifications(t, doctor.UserID)
	require.Len(t, notes, 1)
	assert.Equal(t, appt.ID, notes[0].Data["appointmentId"])

	_, err = env.app.UpdateAppointmentStatus(ctx, patient, appt.ID, domain.AppointmentConfirmed, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.app.UpdateAppointmentStatus(ctx, stranger, appt.ID, domain.AppointmentCancelled, "")
	assert.ErrorIs(t, err, ErrNotFound)

	appt, err = env.app.UpdateAppointmentStatus(ctx, doctor, appt.ID, domain.AppointmentConfirmed, "Bring prior scans")
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentConfirmed, appt.Status)
	assert.Equal(t, "Bring prior scans", appt.Notes)
	assert.Len(t, env.notifications(t, patient.UserID), 1)

	list, err := env.app.ListAppointments(patient)
	require.NoError(t, err)
	assert.Len(t, list.Upcoming, 1)
	assert.Empty(t, list.Past)

	appt, err = env.app.UpdateAppointmentStatus(ctx, doctor, appt.ID, domain.AppointmentCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, "Bring prior scans", appt.Notes)

	_, err = env.app.UpdateAppointmentStatus(ctx, patient, appt.ID, domain.AppointmentCancelled, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	list, err = env.app.ListAppointments(doctor)
	require.NoError(t, err)
	assert.Empty(t, list.Upcoming)
	assert.Len(t, list.Past, 1)
}

func TestPatientCancelsPendingAppointment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patient := env.user(t, domain.RolePatient, "Pat")
	doctor := env.approvedDoctor(t, "Dr Who", "General")

	appt, err := env.app.BookAppointment(ctx, patient, AppointmentInput{
		DoctorID:    doctor.UserID,
		ScheduledAt: time.Now().UTC().Add(24 * time.Hour),
		Reason:      "Follow-up on blood work",
	})
	require.NoError(t, err)

	appt, err = env.app.UpdateAppointmentStatus(ctx, patient, appt.ID, domain.AppointmentCancelled, "patient notes are ignored")
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentCancelled, appt.Status)
	assert.Empty(t, appt.Notes)

	_, err = env.app.UpdateAppointmentStatus(ctx, doctor, appt.ID, domain.AppointmentConfirmed, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestParseAppointmentStatus(t *testing.T) {
	s, ok := ParseAppointmentStatus(" confirmed ")
	assert.True(t, ok)
	assert.Equal(t, domain.AppointmentConfirmed, s)
	_, ok = ParseAppointmentStatus("done")
	assert.False(t, ok)
}
