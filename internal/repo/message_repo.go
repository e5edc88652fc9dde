// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model and its ordered attachments, plus the user profile lookup.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/domain"
)

// CreateMessage inserts a message and its attachments atomically. Attachment
// positions follow slice order.
func CreateMessage(ctx context.Context, db *gorm.DB, authorID, content, source string, atts []domain.Attachment) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Content:   content,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Attachments").Create(m).Error; err != nil {
			return err
		}
		for i := range atts {
			a := atts[i]
			a.ID = uuid.NewString()
			a.MessageID = m.ID
			a.Position = i
			if err := tx.Create(&a).Error; err != nil {
				return err
			}
			m.Attachments = append(m.Attachments, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID with its attachments in position order.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Preload("Attachments", func(q *gorm.DB) *gorm.DB { return q.Order("position ASC") }).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetUser fetches a user profile by ID.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
