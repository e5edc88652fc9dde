// Package domain defines the core persistence models for the application.
// This file holds delivery receipts, which make relaying idempotent across
// queue redeliveries.
package domain

import "time"

// DeliveryReceipt records that a message was published to a platform, keyed
// by (message_id, platform). RemoteID is empty when the API that published the
// message does not return an identifier.
type DeliveryReceipt struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string    `json:"message_id" gorm:"type:char(36);not null;uniqueIndex:ux_receipt_message_platform,priority:1"`
	Platform  string    `json:"platform"   gorm:"type:varchar(32);not null;uniqueIndex:ux_receipt_message_platform,priority:2"`
	RemoteID  string    `json:"remote_id"  gorm:"type:varchar(128)"`
	Path      string    `json:"path"       gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (DeliveryReceipt) TableName() string { return "delivery_receipts" }
