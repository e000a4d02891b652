package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthconnect/pkg/domain"
	"healthconnect/pkg/storage"
)

const longDescription = "The pharmacy counter was closed during posted hours."

func TestFileComplaintWithAttachment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patient := env.user(t, domain.RolePatient, "Pat")
	admin := Actor{UserID: "admin-1", Role: domain.RoleAdmin}

	pdf := upload("receipt.pdf", minimalPDF())
	c, err := env.app.FileComplaint(ctx, patient, ComplaintInput{
		Subject:     "Pharmacy closed",
		Description: longDescription,
		Category:    "service",
		Attachment:  &pdf,
	})
	require.NoError(t, err)
	assert.True(t, c.HasAttachment)
	assert.Equal(t, domain.ComplaintOpen, c.Status)
	assert.Equal(t, 1, env.buckets.ComplaintAttachments.(*storage.MemoryObjectStore).Len())

	mine, err := env.app.ListMyComplaints(patient)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	review, err := env.app.ListComplaintsForReview(ctx, admin, "open")
	require.NoError(t, err)
	require.Len(t, review, 1)
	assert.True(t, strings.HasPrefix(review[0].AttachmentURL, "memory://complaint-attachments/"+patient.UserID+"/"))

	_, err = env.app.ListComplaintsForReview(ctx, patient, "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.app.ListComplaintsForReview(ctx, admin, "closed")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestFileComplaintValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patient := env.user(t, domain.RolePatient, "Pat")
	text := upload("notes.txt", []byte("just some words"))

	cases := []struct {
		name string
		in   ComplaintInput
		want error
	}{
		{"missing subject", ComplaintInput{Subject: " ", Description: longDescription}, ErrSubjectRequired},
		{"long subject", ComplaintInput{Subject: strings.Repeat("s", maxSubjectRunes+1), Description: longDescription}, ErrSubjectTooLong},
		{"short description", ComplaintInput{Subject: "Late", Description: "too short"}, ErrDescriptionTooShort},
		{"bad attachment", ComplaintInput{Subject: "Late", Description: longDescription, Attachment: &text}, ErrAttachmentType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.app.FileComplaint(ctx, patient, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 0, env.buckets.ComplaintAttachments.(*storage.MemoryObjectStore).Len())
}

func TestRespondToComplaint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := env.approvedDoctor(t, "Dr Who", "General")
	admin := Actor{UserID: "admin-1", Role: domain.RoleAdmin}

	c, err := env.app.FileComplaint(ctx, doctor, ComplaintInput{Subject: "Portal outage", Description: "The schedule page failed to load twice today."})
	require.NoError(t, err)

	_, err = env.app.RespondToComplaint(ctx, admin, c.ID, domain.ComplaintResolved, "")
	require.ErrorIs(t, err, ErrResponseRequired)

	c, err = env.app.RespondToComplaint(ctx, admin, c.ID, domain.ComplaintInReview, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintInReview, c.Status)

	c, err = env.app.RespondToComplaint(ctx, admin, c.ID, domain.ComplaintResolved, "Fixed in the latest release.")
	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintResolved, c.Status)
	assert.Equal(t, "Fixed in the latest release.", c.AdminResponse)

	notes := env.notifications(t, doctor.UserID)
	require.Len(t, notes, 2)
	for _, n := range notes {
		assert.Equal(t, domain.NotifyComplaint, n.Kind)
	}

	_, err = env.app.RespondToComplaint(ctx, admin, "missing", domain.ComplaintOpen, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.app.RespondToComplaint(ctx, doctor, c.ID, domain.ComplaintOpen, "")
	assert.ErrorIs(t, err, ErrForbidden)

	s, ok := ParseComplaintStatus("in_review")
	assert.True(t, ok)
	assert.Equal(t, domain.ComplaintInReview, s)
}

func TestRefillSchedule(t *testing.T) {
	env := newTestEnv(t)
	patient := env.user(t, domain.RolePatient, "Pat")
	other := env.user(t, domain.RolePatient, "Other")
	next := time.Now().UTC().AddDate(0, 0, 10)

	r, err := env.app.CreateRefill(patient, RefillInput{MedicationName: "Metformin", Dosage: "500mg", FrequencyDays: 30, NextRefillDate: next})
	require.NoError(t, err)
	assert.Equal(t, defaultRemindDaysBefore, r.RemindDaysBefore)
	assert.True(t, r.Active)
	assert.Equal(t, dateOf(next), r.NextRefillDate)
	assert.Zero(t, r.NextRefillDate.Hour())

	r, err = env.app.MarkRefilled(patient, r.ID)
	require.NoError(t, err)
	assert.Equal(t, dateOf(next).AddDate(0, 0, 30), r.NextRefillDate)

	inactive := false
	remind := 7
	r, err = env.app.UpdateRefill(patient, r.ID, RefillPatch{Active: &inactive, RemindDaysBefore: &remind})
	require.NoError(t, err)
	assert.False(t, r.Active)
	assert.Equal(t, 7, r.RemindDaysBefore)

	_, err = env.app.UpdateRefill(other, r.ID, RefillPatch{Active: &inactive})
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := env.app.ListRefills(patient)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, env.app.DeleteRefill(patient, r.ID))
	list, err = env.app.ListRefills(patient)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRefillValidation(t *testing.T) {
	env := newTestEnv(t)
	patient := env.user(t, domain.RolePatient, "Pat")
	next := time.Now().UTC().AddDate(0, 0, 5)
	tooLong := 31

	cases := []struct {
		name string
		in   RefillInput
		want error
	}{
		{"name", RefillInput{FrequencyDays: 30, NextRefillDate: next}, ErrMedicationName},
		{"frequency", RefillInput{MedicationName: "Aspirin", FrequencyDays: 0, NextRefillDate: next}, ErrFrequencyDays},
		{"remind", RefillInput{MedicationName: "Aspirin", FrequencyDays: 30, NextRefillDate: next, RemindDaysBefore: &tooLong}, ErrRemindDaysBefore},
		{"missing date", RefillInput{MedicationName: "Aspirin", FrequencyDays: 30}, ErrNextRefillDate},
		{"past date", RefillInput{MedicationName: "Aspirin", FrequencyDays: 30, NextRefillDate: time.Now().AddDate(0, 0, -2)}, ErrNextRefillDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.app.CreateRefill(patient, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	doctor := env.approvedDoctor(t, "Dr Who", "General")
	_, err := env.app.CreateRefill(doctor, RefillInput{MedicationName: "Aspirin", FrequencyDays: 30, NextRefillDate: next})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestNotificationReadState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patient := env.user(t, domain.RolePatient, "Pat")
	other := env.user(t, domain.RolePatient, "Other")

	first, err := env.notifier.Notify(ctx, patient.UserID, domain.NotifyAlert, "One", "first", nil)
	require.NoError(t, err)
	_, err = env.notifier.Notify(ctx, patient.UserID, domain.NotifyAlert, "Two", "second", nil)
	require.NoError(t, err)

	unread, err := env.app.ListNotifications(patient, true, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	require.NoError(t, env.app.MarkNotificationRead(patient, first.ID))
	assert.ErrorIs(t, env.app.MarkNotificationRead(other, first.ID), ErrNotFound)

	unread, err = env.app.ListNotifications(patient, true, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	n, err := env.app.MarkAllNotificationsRead(patient)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := env.app.ListNotifications(patient, false, 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestHealthcareAlerts(t *testing.T) {
	env := newTestEnv(t)
	admin := Actor{UserID: "admin-1", Role: domain.RoleAdmin}

	global, err := env.app.CreateAlert(admin, AlertInput{Title: "Flu season", Message: "Get vaccinated."})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityInfo, global.Severity)
	assert.Empty(t, global.Regions)

	regional, err := env.app.CreateAlert(admin, AlertInput{Title: "Water advisory", Message: "Boil water.", Severity: "Warning", Regions: []string{" North ", "north", ""}})
	require.NoError(t, err)
	assert.Equal(t, []string{"north"}, regional.Regions)
	assert.Equal(t, domain.SeverityWarning, regional.Severity)

	north, err := env.app.ListActiveAlerts("NORTH")
	require.NoError(t, err)
	assert.Len(t, north, 2)
	south, err := env.app.ListActiveAlerts("south")
	require.NoError(t, err)
	require.Len(t, south, 1)
	assert.Equal(t, global.ID, south[0].ID)

	_, err = env.app.DeactivateAlert(admin, regional.ID)
	require.NoError(t, err)
	active, err := env.app.ListActiveAlerts("")
	require.NoError(t, err)
	assert.Len(t, active, 1)
	all, err := env.app.ListAllAlerts(admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = env.app.CreateAlert(admin, AlertInput{Title: "x", Message: "y", Severity: "panic"})
	assert.ErrorIs(t, err, ErrAlertSeverity)
	_, err = env.app.CreateAlert(admin, AlertInput{Message: "y"})
	assert.ErrorIs(t, err, ErrAlertTitle)
	_, err = env.app.CreateAlert(admin, AlertInput{Title: "x"})
	assert.ErrorIs(t, err, ErrAlertMessage)
	_, err = env.app.CreateAlert(Actor{UserID: "p", Role: domain.RolePatient}, AlertInput{Title: "x", Message: "y"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.app.DeactivateAlert(admin, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := Actor{UserID: "admin-1", Role: domain.RoleAdmin}
	patient := env.user(t, domain.RolePatient, "Pat")
	env.user(t, domain.RolePatient, "Pat Two")
	doctor := env.approvedDoctor(t, "Dr Who", "General")
	pending := env.user(t, domain.RoleDoctor, "Dr Pending")

	_, err := env.app.SaveDoctorProfile(pending, DoctorProfileInput{Specialization: "ENT", LicenseNumber: "ENT-1"})
	require.NoError(t, err)
	_, err = env.app.BookAppointment(ctx, patient, AppointmentInput{DoctorID: doctor.UserID, ScheduledAt: time.Now().Add(time.Hour), Reason: "Routine blood pressure check"})
	require.NoError(t, err)
	_, _, err = env.app.OpenChat(patient, doctor.UserID)
	require.NoError(t, err)
	_, err = env.app.FileComplaint(ctx, patient, ComplaintInput{Subject: "Wait time", Description: longDescription})
	require.NoError(t, err)
	_, err = env.app.CreateAlert(admin, AlertInput{Title: "Heat wave", Message: "Stay hydrated."})
	require.NoError(t, err)

	stats, err := env.app.AdminStats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.AdminStats{
		Patients:           2,
		Doctors:            2,
		PendingDoctors:     1,
		OpenComplaints:     1,
		UpcomingAppts:      1,
		ActiveAlerts:       1,
		ActiveChatSessions: 1,
	}, stats)

	_, err = env.app.AdminStats(ctx, patient)
	assert.ErrorIs(t, err, ErrForbidden)
}
