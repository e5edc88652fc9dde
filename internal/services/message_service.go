// Package services – MessageService
//
// MessageService owns message intake: it validates a new local message,
// stores it with its attachments, and enqueues a relay job for the configured
// platform in the same transaction. It also serves message lookups and the
// paginated job view.
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/repo"
	"github.com/tbourn/go-relay-bridge/internal/utils"
)

// MessageRepo is the message persistence contract.
type MessageRepo interface {
	CreateMessage(ctx context.Context, db *gorm.DB, authorID, content, source string, atts []domain.Attachment) (*domain.Message, error)
	GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error)
}

// JobRepo is the relay queue contract used by intake and the job view.
type JobRepo interface {
	EnqueueJob(ctx context.Context, db *gorm.DB, messageID, platform string) (*domain.RelayJob, error)
	CountJobs(ctx context.Context, db *gorm.DB, status string) (int64, error)
	ListJobsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.RelayJob, error)
}

// MessageService coordinates message intake and lookups.
type MessageService struct {
	DB       *gorm.DB
	Messages MessageRepo
	Jobs     JobRepo

	// Platform receives a relay job for every new message.
	Platform string

	// Optional guards
	MaxContentRunes int
	MaxAttachments  int
}

// Create validates and stores a message, then enqueues its relay job. Messages
// whose source is the platform itself are stored but not enqueued; job is
// nil then.
func (s *MessageService) Create(ctx context.Context, authorID, content, source string, atts []domain.Attachment) (msg *domain.Message, job *domain.RelayJob, err error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", authorID),
			attribute.Int("attachments", len(atts)),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, nil, ErrTooLong
	}
	if s.MaxAttachments > 0 && len(atts) > s.MaxAttachments {
		return nil, nil, ErrTooManyAttachments
	}
	for _, a := range atts {
		if strings.TrimSpace(a.URL) == "" {
			return nil, nil, ErrInvalidAttachment
		}
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "web"
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.Messages.CreateMessage(ctx, tx, authorID, content, source, atts)
		if err != nil {
			return err
		}
		msg = m
		if strings.EqualFold(source, s.Platform) {
			return nil
		}
		job, err = s.Jobs.EnqueueJob(ctx, tx, m.ID, s.Platform)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return msg, job, nil
}

// Get returns a message with its attachments.
func (s *MessageService) Get(ctx context.Context, id string) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("message.id", id)),
	)
	defer span.End()

	m, err := s.Messages.GetMessage(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	return m, err
}

// ListJobs returns a page of relay jobs, optionally filtered by status.
// It applies defaults for invalid page/pageSize and returns the total count.
func (s *MessageService) ListJobs(ctx context.Context, status string, page, pageSize int) ([]domain.RelayJob, int64, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "ListJobs",
		trace.WithAttributes(
			attribute.String("status", status),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	switch status {
	case "", domain.JobPending, domain.JobProcessing, domain.JobDone, domain.JobFailed:
	default:
		return nil, 0, ErrInvalidStatus
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	offset := utils.Offset(page, pageSize)

	total, err := s.Jobs.CountJobs(ctx, s.DB, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.RelayJob{}, 0, nil
	}
	items, err := s.Jobs.ListJobsPage(ctx, s.DB, status, offset, pageSize)
	return items, total, err
}
