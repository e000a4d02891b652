package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthconnect/pkg/domain"
	"healthconnect/pkg/events"
	"healthconnect/pkg/storage"
	"healthconnect/pkg/store"
	"healthconnect/services/portal/internal/notify"
)

type testEnv struct {
	app      *App
	store    *store.MemoryStore
	buckets  storage.Buckets
	events   *events.RecordingPublisher
	notifier *notify.Service
	offset   time.Duration
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		store:   store.NewMemoryStore(),
		buckets: storage.NewMemoryBuckets(),
		events:  &events.RecordingPublisher{},
	}
	env.notifier = notify.NewService(env.store, env.events, logger)
	var err error
	env.app, err = New(Config{
		Store:    env.store,
		Buckets:  env.buckets,
		Notifier: env.notifier,
		Logger:   logger,
		Now:      func() time.Time { return time.Now().UTC().Add(env.offset) },
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) user(t *testing.T, role domain.Role, name string) Actor {
	t.Helper()
	id := uuid.NewString()
	now := time.Now().UTC()
	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "-" + id[:8] + "@example.com"
	require.NoError(t, e.store.CreateAccount(
		domain.Account{ID: id, Email: email, Role: role, Status: domain.AccountActive, CreatedAt: now, UpdatedAt: now},
		domain.Profile{ID: id, Email: email, FullName: name, Role: role, CreatedAt: now, UpdatedAt: now},
	))
	return Actor{UserID: id, Role: role}
}

// approvedDoctor registers a doctor who has passed review.
func (e *testEnv) approvedDoctor(t *testing.T, name, specialization string) Actor {
	t.Helper()
	doctor := e.user(t, domain.RoleDoctor, name)
	require.NoError(t, e.store.SaveDoctorProfile(domain.DoctorProfile{
		UserID:             doctor.UserID,
		Specialization:     specialization,
		LicenseNumber:      "LIC-" + doctor.UserID[:8],
		DocumentKey:        doctor.UserID + "/license.pdf",
		VerificationStatus: domain.VerificationApproved,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}))
	return doctor
}

func (e *testEnv) notifications(t *testing.T, userID string) []domain.Notification {
	t.Helper()
	notes, err := e.store.ListNotifications(userID, false, 0)
	require.NoError(t, err)
	return notes
}

// minimalPDF builds a one-page PDF with a valid cross-reference table.
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func pngBytes() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
}

func upload(name string, data []byte) Upload {
	return Upload{Filename: name, Body: bytes.NewReader(data)}
}

func TestNewRequiresStoreAndBuckets(t *testing.T) {
	_, err := New(Config{Buckets: storage.NewMemoryBuckets()})
	require.Error(t, err)
	_, err = New(Config{Store: store.NewMemoryStore()})
	require.Error(t, err)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patient := env.user(t, domain.RolePatient, "Ada Patient")

	name := "  Ada <b>Lovelace</b> "
	phone := "+1 (555) 010-9999"
	view, err := env.app.UpdateProfile(ctx, patient, ProfileUpdate{FullName: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", view.FullName)
	assert.Equal(t, phone, view.Phone)
	assert.Equal(t, domain.RolePatient, view.Role)

	blank := "   "
	_, err = env.app.UpdateProfile(ctx, patient, ProfileUpdate{FullName: &blank})
	assert.ErrorIs(t, err, ErrFullNameRequired)

	bad := "call me"
	_, err = env.app.UpdateProfile(ctx, patient, ProfileUpdate{Phone: &bad})
	assert.ErrorIs(t, err, ErrPhoneInvalid)

	_, err = env.app.GetProfile(ctx, Actor{UserID: "missing", Role: domain.RolePatient})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadAvatarReplacesPrevious(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patient := env.user(t, domain.RolePatient, "Avatar Owner")
	photos := env.buckets.ProfilePhotos.(*storage.MemoryObjectStore)

	first, err := env.app.UploadAvatar(ctx, patient, upload("me.png", pngBytes()))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.AvatarURL, "memory://profile-photos/"+patient.UserID+"/"))
	assert.True(t, strings.HasSuffix(first.AvatarKey, ".png"))

	second, err := env.app.UploadAvatar(ctx, patient, upload("me2.png", pngBytes()))
	require.NoError(t, err)
	assert.NotEqual(t, first.AvatarKey, second.AvatarKey)
	assert.Equal(t, 1, photos.Len())

	_, err = env.app.UploadAvatar(ctx, patient, upload("notes.txt", []byte("plain text, not an image")))
	assert.ErrorIs(t, err, ErrImageType)
	_, err = env.app.UploadAvatar(ctx, patient, upload("empty.png", nil))
	assert.ErrorIs(t, err, ErrFileRequired)

	env.app.maxImage = 8
	_, err = env.app.UploadAvatar(ctx, patient, upload("big.png", pngBytes()))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestInstitutions(t *testing.T) {
	env := newTestEnv(t)
	admin := Actor{UserID: "admin-1", Role: domain.RoleAdmin}

	inst, err := env.app.CreateInstitution(admin, InstitutionInput{Name: "City Hospital", City: "Springfield"})
	require.NoError(t, err)
	assert.NotEmpty(t, inst.ID)

	_, err = env.app.CreateInstitution(admin, InstitutionInput{Name: "city hospital"})
	assert.ErrorIs(t, err, ErrInstitutionExists)
	_, err = env.app.CreateInstitution(admin, InstitutionInput{Name: " "})
	assert.ErrorIs(t, err, ErrInstitutionName)
	_, err = env.app.CreateInstitution(Actor{UserID: "p", Role: domain.RolePatient}, InstitutionInput{Name: "Clinic"})
	assert.ErrorIs(t, err, ErrForbidden)

	list, err := env.app.ListInstitutions()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "City Hospital", list[0].Name)
}

func TestCheckPDF(t *testing.T) {
	pages, err := checkPDF(minimalPDF())
	require.NoError(t, err)
	assert.Equal(t, 1, pages)

	_, err = checkPDF([]byte("%PDF-1.4\ngarbage that is not a document"))
	assert.ErrorIs(t, err, ErrNotPDF)
	_, err = checkPDF(pngBytes())
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestValidPhone(t *testing.T) {
	for phone, want := range map[string]bool{
		"+15550109999":     true,
		"(555) 010-9999":   true,
		"123456":           false,
		"1234567890123456": false,
		"555-CALL-NOW":     false,
		"1+5550109999":     false,
	} {
		assert.Equal(t, want, validPhone(phone), phone)
	}
}
