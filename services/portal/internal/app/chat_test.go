package app

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthconnect/pkg/domain"
	"healthconnect/pkg/store"
)

func TestChatSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patient := env.user(t, domain.RolePatient, "Pat")
	doctor := env.approvedDoctor(t, "Dr Who", "General")
	stranger := env.user(t, domain.RolePatient, "Stranger")

	session, created, err := env.app.OpenChat(patient, doctor.UserID)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := env.app.OpenChat(doctor, patient.UserID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, session.ID, again.ID)

	msg, err := env.app.SendMessage(ctx, patient, session.ID, "  Hello <i>doctor</i>  ")
	require.NoError(t, err)
	assert.Equal(t, "Hello doctor", msg.Content)

	notes := env.notifications(t, doctor.UserID)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotifyChat, notes[0].Kind)
	assert.Equal(t, "Hello doctor", notes[0].Body)

	_, err = env.app.SendMessage(ctx, patient, session.ID, "   ")
	assert.ErrorIs(t, err, ErrMessageEmpty)
	_, err = env.app.SendMessage(ctx, patient, session.ID, strings.Repeat("a", maxMessageRunes+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)
	_, err = env.app.SendMessage(ctx, stranger, session.ID, "hi")
	assert.ErrorIs(t, err, ErrNotFound)

	read, err := env.app.MarkChatRead(doctor, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, read)

	msgs, err := env.app.ListMessages(doctor, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.NotNil(t, msgs[0].ReadAt)

	chats, err := env.app.ListChats(patient)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.NotNil(t, chats[0].LastMessageAt)

	closed, err := env.app.CloseChat(doctor, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChatClosed, closed.Status)
	_, err = env.app.SendMessage(ctx, patient, session.ID, "still there?")
	assert.ErrorIs(t, err, ErrChatClosed)

	next, created, err := env.app.OpenChat(patient, doctor.UserID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, session.ID, next.ID)
}

func TestOpenChatCounterpartRules(t *testing.T) {
	env := newTestEnv(t)
	patient := env.user(t, domain.RolePatient, "Pat")
	pending := env.user(t, domain.RoleDoctor, "Dr Pending")
	doctor := env.approvedDoctor(t, "Dr Who", "General")
	otherDoctor := env.approvedDoctor(t, "Dr Two", "General")

	_, _, err := env.app.OpenChat(patient, pending.UserID)
	assert.ErrorIs(t, err, ErrCounterpartInvalid)
	_, _, err = env.app.OpenChat(doctor, otherDoctor.UserID)
	assert.ErrorIs(t, err, ErrCounterpartInvalid)
	_, _, err = env.app.OpenChat(Actor{UserID: "admin", Role: domain.RoleAdmin}, doctor.UserID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPreviewTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("é", chatPreviewRunes+5)
	got := preview(long)
	assert.Equal(t, chatPreviewRunes+1, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, "short", preview("short"))
}

// staleLookupStore misses the first active-session lookup, as a request does
// when a concurrent request inserts between its lookup and its insert.
type staleLookupStore struct {
	*store.MemoryStore
	lookups atomic.Int32
}

func (s *staleLookupStore) FindActiveChatSession(patientID, doctorID string) (domain.ChatSession, bool, error) {
	if s.lookups.Add(1) == 1 {
		return domain.ChatSession{}, false, nil
	}
	return s.MemoryStore.FindActiveChatSession(patientID, doctorID)
}

func TestOpenChatReturnsSessionCreatedConcurrently(t *testing.T) {
	env := newTestEnv(t)
	patient := env.user(t, domain.RolePatient, "Pat")
	doctor := env.approvedDoctor(t, "Dr Who", "General")

	session, created, err := env.app.OpenChat(patient, doctor.UserID)
	require.NoError(t, err)
	require.True(t, created)

	racing := &staleLookupStore{MemoryStore: env.store}
	a, err := New(Config{Store: racing, Buckets: env.buckets, Notifier: env.notifier})
	require.NoError(t, err)

	again, created, err := a.OpenChat(patient, doctor.UserID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, session.ID, again.ID)
}

func TestOpenChatConcurrentRequestsShareOneSession(t *testing.T) {
	env := newTestEnv(t)
	patient := env.user(t, domain.RolePatient, "Pat")
	doctor := env.approvedDoctor(t, "Dr Who", "General")

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, _, err := env.app.OpenChat(patient, doctor.UserID)
			ids[i], errs[i] = session.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	chats, err := env.app.ListChats(patient)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}
