// Package domain defines the core persistence models for the application.
// This file holds the outbox-style tables: relay jobs consumed by the queue
// workers and user notifications waiting for a mailer.
package domain

import "time"

// Relay job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobDone       = "done"
	JobFailed     = "failed"
)

// RelayJob asks the queue to relay one message to one platform. A message is
// enqueued at most once per platform (enforced by unique index).
type RelayJob struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	MessageID     string     `json:"message_id"      gorm:"type:char(36);not null;uniqueIndex:ux_job_message_platform,priority:1"`
	Platform      string     `json:"platform"        gorm:"type:varchar(32);not null;uniqueIndex:ux_job_message_platform,priority:2"`
	Status        string     `json:"status"          gorm:"type:varchar(16);not null;index:idx_job_due,priority:1;check:status IN ('pending','processing','done','failed')"`
	Attempts      int        `json:"attempts"        gorm:"not null;default:0"`
	NextAttemptAt time.Time  `json:"next_attempt_at" gorm:"index:idx_job_due,priority:2"`
	LeasedAt      *time.Time `json:"leased_at,omitempty"`
	LastError     string     `json:"last_error,omitempty" gorm:"type:text"`
	Outcome       string     `json:"outcome,omitempty"    gorm:"type:varchar(32)"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for RelayJob.
func (RelayJob) TableName() string { return "relay_jobs" }

// Notification is a message addressed to a local user, stored until a mailer
// picks it up.
type Notification struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string     `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	Kind      string     `json:"kind"       gorm:"type:varchar(32);not null"`
	Locale    string     `json:"locale"     gorm:"type:varchar(16);not null"`
	Subject   string     `json:"subject"    gorm:"type:varchar(255);not null"`
	Body      string     `json:"body"       gorm:"type:text;not null"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }
