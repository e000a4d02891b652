package app

import (
	"context"
	"errors"
	"fmt"

	"healthconnect/pkg/domain"
	"healthconnect/pkg/store"
)

const (
	maxMessageRunes    = 2000
	defaultMessagePage = 50
	maxMessagePage     = 200
	chatPreviewRunes   = 80
)

// OpenChat returns the active session between the caller and counterpartID,
// creating one if none is active. Patients may only chat with approved
// doctors; doctors only with patients.
func (a *App) OpenChat(actor Actor, counterpartID string) (domain.ChatSession, bool, error) {
	counterpartID = trimmed(counterpartID)
	var patientID, doctorID string
	switch actor.Role {
	case domain.RolePatient:
		doc, ok, err := a.store.GetDoctorProfile(counterpartID)
		if err != nil {
			return domain.ChatSession{}, false, fmt.Errorf("fetch doctor: %w", err)
		}
		if !ok || doc.VerificationStatus != domain.VerificationApproved {
			return domain.ChatSession{}, false, ErrCounterpartInvalid
		}
		patientID, doctorID = actor.UserID, counterpartID
	case domain.RoleDoctor:
		profile, ok, err := a.store.GetProfile(counterpartID)
		if err != nil {
			return domain.ChatSession{}, false, fmt.Errorf("fetch profile: %w", err)
		}
		if !ok || profile.Role != domain.RolePatient {
			return domain.ChatSession{}, false, ErrCounterpartInvalid
		}
		patientID, doctorID = counterpartID, actor.UserID
	default:
		return domain.ChatSession{}, false, ErrForbidden
	}

	existing, ok, err := a.store.FindActiveChatSession(patientID, doctorID)
	if err != nil {
		return domain.ChatSession{}, false, fmt.Errorf("find chat: %w", err)
	}
	if ok {
		return existing, false, nil
	}
	now := a.now()
	session := domain.ChatSession{
		ID:        newID(),
		PatientID: patientID,
		DoctorID:  doctorID,
		Status:    domain.ChatActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateChatSession(session); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return domain.ChatSession{}, false, fmt.Errorf("save chat: %w", err)
		}
		// A concurrent request opened the session first.
		existing, ok, err := a.store.FindActiveChatSession(patientID, doctorID)
		if err != nil {
			return domain.ChatSession{}, false, fmt.Errorf("find chat: %w", err)
		}
		if !ok {
			return domain.ChatSession{}, false, fmt.Errorf("save chat: %w", store.ErrDuplicate)
		}
		return existing, false, nil
	}
	return session, true, nil
}

// ListChats returns the caller's sessions, most recently active first.
func (a *App) ListChats(actor Actor) ([]domain.ChatSession, error) {
	return a.store.ListChatSessionsForUser(actor.UserID)
}

// ListMessages returns up to limit of the latest messages in chronological order.
func (a *App) ListMessages(actor Actor, sessionID string, limit int) ([]domain.ChatMessage, error) {
	if _, err := a.chatFor(actor, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessagePage
	}
	if limit > maxMessagePage {
		limit = maxMessagePage
	}
	return a.store.ListChatMessages(trimmed(sessionID), limit)
}

// SendMessage appends a message to an active session and notifies the other
// participant.
func (a *App) SendMessage(ctx context.Context, actor Actor, sessionID, content string) (domain.ChatMessage, error) {
	session, err := a.chatFor(actor, sessionID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if session.Status != domain.ChatActive {
		return domain.ChatMessage{}, ErrChatClosed
	}
	content, n := cleanText(content)
	if n == 0 {
		return domain.ChatMessage{}, ErrMessageEmpty
	}
	if n > maxMessageRunes {
		return domain.ChatMessage{}, ErrMessageTooLong
	}
	msg := domain.ChatMessage{
		ID:        newID(),
		SessionID: session.ID,
		SenderID:  actor.UserID,
		Content:   content,
		CreatedAt: a.now(),
	}
	if err := a.store.AppendChatMessage(msg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ChatMessage{}, notFound("chat")
		}
		return domain.ChatMessage{}, fmt.Errorf("append message: %w", err)
	}
	a.notifier.NotifyQuietly(ctx, session.Counterpart(actor.UserID), domain.NotifyChat,
		"New message", preview(content),
		map[string]string{"sessionId": session.ID, "messageId": msg.ID})
	return msg, nil
}

// CloseChat ends a session. Closing a closed session is a no-op.
func (a *App) CloseChat(actor Actor, sessionID string) (domain.ChatSession, error) {
	session, err := a.chatFor(actor, sessionID)
	if err != nil {
		return domain.ChatSession{}, err
	}
	if session.Status == domain.ChatClosed {
		return session, nil
	}
	session.Status = domain.ChatClosed
	session.UpdatedAt = a.now()
	if err := a.store.SaveChatSession(session); err != nil {
		return domain.ChatSession{}, fmt.Errorf("save chat: %w", err)
	}
	return session, nil
}

// MarkChatRead marks messages from the other participant as read.
func (a *App) MarkChatRead(actor Actor, sessionID string) (int, error) {
	session, err := a.chatFor(actor, sessionID)
	if err != nil {
		return 0, err
	}
	return a.store.MarkChatMessagesRead(session.ID, actor.UserID, a.now())
}

func (a *App) chatFor(actor Actor, sessionID string) (domain.ChatSession, error) {
	session, ok, err := a.store.GetChatSession(trimmed(sessionID))
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("fetch chat: %w", err)
	}
	if !ok || !session.HasParticipant(actor.UserID) {
		return domain.ChatSession{}, notFound("chat")
	}
	return session, nil
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= chatPreviewRunes {
		return s
	}
	return string(runes[:chatPreviewRunes]) + "…"
}
