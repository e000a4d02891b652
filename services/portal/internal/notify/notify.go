// Package notify writes notification rows and announces them on the event bus.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"healthconnect/pkg/domain"
	"healthconnect/pkg/events"
	"healthconnect/pkg/store"
)

// Store is the slice of the portal store the service needs.
type Store interface {
	SaveNotification(domain.Notification) error
}

// Service persists notifications. Clients poll the table for unread rows; the
// published event is best effort.
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds a notification service. A nil publisher drops events.
func NewService(st Store, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Notify writes one notification for userID.
func (s *Service) Notify(ctx context.Context, userID string, kind domain.NotificationKind, title, body string, data map[string]string) (domain.Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Notification{}, errors.New("notification requires a user")
	}
	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		Data:      data,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveNotification(n); err != nil {
		return domain.Notification{}, fmt.Errorf("save notification: %w", err)
	}
	event := events.NotificationEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Kind:           string(n.Kind),
		Title:          n.Title,
		Data:           n.Data,
		CreatedAt:      n.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("notification_publish_failed", "notification_id", n.ID, "kind", n.Kind, "err", err)
	}
	return n, nil
}

// NotifyQuietly is Notify for side effects of an already committed action:
// failures are logged and dropped.
func (s *Service) NotifyQuietly(ctx context.Context, userID string, kind domain.NotificationKind, title, body string, data map[string]string) {
	if _, err := s.Notify(ctx, userID, kind, title, body, data); err != nil {
		s.logger.Error("notification_failed", "user_id", userID, "kind", kind, "err", err)
	}
}

var _ Store = (store.PortalStore)(nil)
