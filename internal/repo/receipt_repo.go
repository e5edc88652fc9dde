// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for DeliveryReceipt,
// which keeps a message from being published twice to the same platform when
// the queue redelivers it.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/domain"
)

// ErrDuplicate indicates that a row with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// GetReceipt returns the receipt of messageID on platform or ErrNotFound.
func GetReceipt(ctx context.Context, db *gorm.DB, messageID, platform string) (*domain.DeliveryReceipt, error) {
	var rec domain.DeliveryReceipt
	err := db.WithContext(ctx).
		Where("message_id = ? AND platform = ?", messageID, platform).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateReceipt inserts a receipt and returns ErrDuplicate on unique violation.
func CreateReceipt(ctx context.Context, db *gorm.DB, messageID, platform, path, remoteID string) (*domain.DeliveryReceipt, error) {
	rec := &domain.DeliveryReceipt{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Platform:  platform,
		RemoteID:  remoteID,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// isUniqueViolation matches unique-key errors from both drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
