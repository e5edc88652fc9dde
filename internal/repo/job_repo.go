// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the relay job queue: an outbox table that
// queue workers claim with a conditional UPDATE, so any number of workers (in
// one process or many) can poll it concurrently.
//
// Lifecycle:
//
//	pending --claim--> processing --complete--> done
//	                       |------retry-------> pending (next_attempt_at in the future)
//	                       |------fail--------> failed
//	                       '--lease expired---> pending
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/domain"
)

// claimAttempts bounds how often ClaimNextJob retries after losing a race.
const claimAttempts = 5

// EnqueueJob schedules messageID for relay to platform. A message already
// queued for that platform yields ErrDuplicate.
func EnqueueJob(ctx context.Context, db *gorm.DB, messageID, platform string) (*domain.RelayJob, error) {
	now := time.Now().UTC()
	job := &domain.RelayJob{
		ID:            uuid.NewString(),
		MessageID:     messageID,
		Platform:      platform,
		Status:        domain.JobPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.WithContext(ctx).Create(job).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return job, nil
}

// GetJob fetches a job by ID.
func GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.RelayJob, error) {
	var j domain.RelayJob
	if err := db.WithContext(ctx).Where("id = ?", id).First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// ClaimNextJob leases the oldest due pending job, moving it to processing and
// bumping its attempt counter. It returns ErrNotFound when nothing is due.
func ClaimNextJob(ctx context.Context, db *gorm.DB, now time.Time) (*domain.RelayJob, error) {
	now = now.UTC()
	for i := 0; i < claimAttempts; i++ {
		var cand domain.RelayJob
		err := db.WithContext(ctx).
			Where("status = ? AND next_attempt_at <= ?", domain.JobPending, now).
			Order("next_attempt_at ASC, created_at ASC, id ASC").
			First(&cand).Error
		if err != nil {
			return nil, err
		}

		res := db.WithContext(ctx).Model(&domain.RelayJob{}).
			Where("id = ? AND status = ?", cand.ID, domain.JobPending).
			Updates(map[string]any{
				"status":     domain.JobProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"leased_at":  now,
				"updated_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return GetJob(ctx, db, cand.ID)
		}
		// Another worker won; look again.
	}
	return nil, ErrNotFound
}

// CompleteJob marks a processing job as done with its final outcome.
func CompleteJob(ctx context.Context, db *gorm.DB, id, outcome string) error {
	return finishJob(ctx, db, id, map[string]any{
		"status":     domain.JobDone,
		"outcome":    outcome,
		"leased_at":  nil,
		"updated_at": time.Now().UTC(),
	})
}

// RetryJob puts a processing job back to pending, due at next.
func RetryJob(ctx context.Context, db *gorm.DB, id string, next time.Time, lastErr string) error {
	return finishJob(ctx, db, id, map[string]any{
		"status":          domain.JobPending,
		"next_attempt_at": next.UTC(),
		"last_error":      lastErr,
		"leased_at":       nil,
		"updated_at":      time.Now().UTC(),
	})
}

// FailJob marks a processing job as failed for good.
func FailJob(ctx context.Context, db *gorm.DB, id, outcome, lastErr string) error {
	return finishJob(ctx, db, id, map[string]any{
		"status":     domain.JobFailed,
		"outcome":    outcome,
		"last_error": lastErr,
		"leased_at":  nil,
		"updated_at": time.Now().UTC(),
	})
}

func finishJob(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.RelayJob{}).
		Where("id = ? AND status = ?", id, domain.JobProcessing).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RequeueStaleJobs returns jobs leased before cutoff to pending. Their
// workers are presumed dead. It reports how many jobs were requeued.
func RequeueStaleJobs(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.RelayJob{}).
		Where("status = ? AND leased_at < ?", domain.JobProcessing, cutoff.UTC()).
		Updates(map[string]any{
			"status":          domain.JobPending,
			"next_attempt_at": now,
			"leased_at":       nil,
			"updated_at":      now,
		})
	return res.RowsAffected, res.Error
}

// CountJobs counts jobs, optionally filtered by status (empty = all). It
// uses a raw COUNT so a missing table surfaces as an error.
func CountJobs(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	var total int64
	var err error
	if status == "" {
		err = db.WithContext(ctx).Raw("SELECT COUNT(*) FROM relay_jobs").Scan(&total).Error
	} else {
		err = db.WithContext(ctx).Raw("SELECT COUNT(*) FROM relay_jobs WHERE status = ?", status).Scan(&total).Error
	}
	return total, err
}

// ListJobsPage returns a page of jobs ordered (CreatedAt ASC, ID ASC),
// optionally filtered by status.
func ListJobsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.RelayJob, error) {
	var out []domain.RelayJob
	q := db.WithContext(ctx).Order("created_at ASC, id ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountJobsByStatus returns the number of jobs per status. Statuses with no
// rows are reported as zero.
func CountJobsByStatus(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := db.WithContext(ctx).Model(&domain.RelayJob{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[string]int64{
		domain.JobPending:    0,
		domain.JobProcessing: 0,
		domain.JobDone:       0,
		domain.JobFailed:     0,
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// IsDuplicate reports whether err is ErrDuplicate.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }
