// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for ExternalLink,
// the durable binding between a local user and a remote platform account.
//
// Error semantics:
//   - When a link is not found, functions return ErrNotFound.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - GetLink(ctx, db, userID, platform) -> *domain.ExternalLink, error
//   - UpsertLink(ctx, db, link) -> *domain.ExternalLink, error
//     Inserts or replaces the (user, platform) link in one statement.
//   - DeleteLink(ctx, db, userID, platform) -> error
//     Deletes the link in one statement; ErrNotFound when nothing matched.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-relay-bridge/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetLink fetches the link of userID on platform, or ErrNotFound.
func GetLink(ctx context.Context, db *gorm.DB, userID, platform string) (*domain.ExternalLink, error) {
	var l domain.ExternalLink
	err := db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpsertLink stores link, replacing remote id, credentials and sync flags of
// an existing (user, platform) row. A missing ID is generated.
func UpsertLink(ctx context.Context, db *gorm.DB, link *domain.ExternalLink) (*domain.ExternalLink, error) {
	now := time.Now().UTC()
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now

	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "platform"}},
		DoUpdates: clause.AssignmentColumns([]string{"remote_id", "credentials", "sync_flags", "updated_at"}),
	}).Create(link).Error
	if err != nil {
		return nil, err
	}
	return GetLink(ctx, db, link.UserID, link.Platform)
}

// DeleteLink removes the link of userID on platform with a single statement.
// It returns ErrNotFound when no row was deleted.
func DeleteLink(ctx context.Context, db *gorm.DB, userID, platform string) error {
	res := db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		Delete(&domain.ExternalLink{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
