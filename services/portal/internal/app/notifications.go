package app

import (
	"fmt"

	"healthconnect/pkg/domain"
)

const (
	defaultNotificationPage = 50
	maxNotificationPage     = 200
)

// ListNotifications returns the caller's notifications, newest first.
func (a *App) ListNotifications(actor Actor, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationPage
	}
	if limit > maxNotificationPage {
		limit = maxNotificationPage
	}
	return a.store.ListNotifications(actor.UserID, unreadOnly, limit)
}

// MarkNotificationRead marks one of the caller's notifications read.
func (a *App) MarkNotificationRead(actor Actor, id string) error {
	ok, err := a.store.MarkNotificationRead(trimmed(id), actor.UserID, a.now())
	if err != nil {
		return fmt.Errorf("mark notification: %w", err)
	}
	if !ok {
		return notFound("notification")
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the caller
// read and reports how many changed.
func (a *App) MarkAllNotificationsRead(actor Actor) (int, error) {
	return a.store.MarkAllNotificationsRead(actor.UserID, a.now())
}
