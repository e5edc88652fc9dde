package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/domain"
)

// Store adapts the repository free functions to the interfaces expected by
// the service and queue layers. It has no state; the *gorm.DB is passed per
// call so services can hand in a transaction.
type Store struct{}

// GetLink proxies GetLink.
func (Store) GetLink(ctx context.Context, db *gorm.DB, userID, platform string) (*domain.ExternalLink, error) {
	return GetLink(ctx, db, userID, platform)
}

// UpsertLink proxies UpsertLink.
func (Store) UpsertLink(ctx context.Context, db *gorm.DB, link *domain.ExternalLink) (*domain.ExternalLink, error) {
	return UpsertLink(ctx, db, link)
}

// DeleteLink proxies DeleteLink.
func (Store) DeleteLink(ctx context.Context, db *gorm.DB, userID, platform string) error {
	return DeleteLink(ctx, db, userID, platform)
}

// GetUser proxies GetUser.
func (Store) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return GetUser(ctx, db, id)
}

// CreateMessage proxies CreateMessage.
func (Store) CreateMessage(ctx context.Context, db *gorm.DB, authorID, content, source string, atts []domain.Attachment) (*domain.Message, error) {
	return CreateMessage(ctx, db, authorID, content, source, atts)
}

// GetMessage proxies GetMessage.
func (Store) GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	return GetMessage(ctx, db, id)
}

// GetReceipt proxies GetReceipt.
func (Store) GetReceipt(ctx context.Context, db *gorm.DB, messageID, platform string) (*domain.DeliveryReceipt, error) {
	return GetReceipt(ctx, db, messageID, platform)
}

// CreateReceipt proxies CreateReceipt.
func (Store) CreateReceipt(ctx context.Context, db *gorm.DB, messageID, platform, path, remoteID string) (*domain.DeliveryReceipt, error) {
	return CreateReceipt(ctx, db, messageID, platform, path, remoteID)
}

// CreateNotification proxies CreateNotification.
func (Store) CreateNotification(ctx context.Context, db *gorm.DB, userID, kind, locale, subject, body string) (*domain.Notification, error) {
	return CreateNotification(ctx, db, userID, kind, locale, subject, body)
}

// EnqueueJob proxies EnqueueJob.
func (Store) EnqueueJob(ctx context.Context, db *gorm.DB, messageID, platform string) (*domain.RelayJob, error) {
	return EnqueueJob(ctx, db, messageID, platform)
}

// ClaimNextJob proxies ClaimNextJob.
func (Store) ClaimNextJob(ctx context.Context, db *gorm.DB, now time.Time) (*domain.RelayJob, error) {
	return ClaimNextJob(ctx, db, now)
}

// CompleteJob proxies CompleteJob.
func (Store) CompleteJob(ctx context.Context, db *gorm.DB, id, outcome string) error {
	return CompleteJob(ctx, db, id, outcome)
}

// RetryJob proxies RetryJob.
func (Store) RetryJob(ctx context.Context, db *gorm.DB, id string, next time.Time, lastErr string) error {
	return RetryJob(ctx, db, id, next, lastErr)
}

// FailJob proxies FailJob.
func (Store) FailJob(ctx context.Context, db *gorm.DB, id, outcome, lastErr string) error {
	return FailJob(ctx, db, id, outcome, lastErr)
}

// RequeueStaleJobs proxies RequeueStaleJobs.
func (Store) RequeueStaleJobs(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	return RequeueStaleJobs(ctx, db, cutoff)
}

// CountJobs proxies CountJobs.
func (Store) CountJobs(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	return CountJobs(ctx, db, status)
}

// ListJobsPage proxies ListJobsPage.
func (Store) ListJobsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.RelayJob, error) {
	return ListJobsPage(ctx, db, status, offset, limit)
}

// CountJobsByStatus proxies CountJobsByStatus.
func (Store) CountJobsByStatus(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	return CountJobsByStatus(ctx, db)
}
