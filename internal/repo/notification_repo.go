// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the notification outbox writer.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/domain"
)

// CreateNotification stores a notification for userID. It is picked up later
// by whatever mailer drains the outbox.
func CreateNotification(ctx context.Context, db *gorm.DB, userID, kind, locale, subject, body string) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Locale:    locale,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	return n, db.WithContext(ctx).Create(n).Error
}

// ListNotifications returns a user's notifications, newest first.
func ListNotifications(ctx context.Context, db *gorm.DB, userID string) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}
