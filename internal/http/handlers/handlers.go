// Package handlers – wiring.
//
// This file declares the service contracts consumed by the HTTP layer, the
// Handlers aggregate, and helpers shared by every endpoint (caller identity,
// pagination).
package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/utils"
)

//
// Service contracts (context-aware)
//

// MessageService defines message intake and the queue view.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MessageService interface {
	// Create stores a message and enqueues its relay job (job may be nil).
	Create(ctx context.Context, authorID, content, source string, atts []domain.Attachment) (*domain.Message, *domain.RelayJob, error)
	// Get returns a message with its attachments.
	Get(ctx context.Context, id string) (*domain.Message, error)
	// ListJobs returns a page of relay jobs and the total count.
	ListJobs(ctx context.Context, status string, page, pageSize int) ([]domain.RelayJob, int64, error)
}

// LinkService manages the caller's platform links.
type LinkService interface {
	Get(ctx context.Context, userID, platform string) (*domain.ExternalLink, error)
	Upsert(ctx context.Context, userID, platform, remoteID, credentials string, syncFlags int) (*domain.ExternalLink, error)
	Disconnect(ctx context.Context, userID, platform string) error
}

// Relayer delivers one message synchronously.
type Relayer interface {
	Relay(ctx context.Context, msg *domain.Message) domain.DeliveryOutcome
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for messages, links, relays and jobs.
type Handlers struct {
	msgSvc  MessageService
	linkSvc LinkService
	relay   Relayer
}

// New constructs and returns a Handlers instance bound to the given services.
func New(msgSvc MessageService, linkSvc LinkService, relay Relayer) *Handlers {
	return &Handlers{msgSvc: msgSvc, linkSvc: linkSvc, relay: relay}
}

// userID extracts the caller id from Gin context (set by upstream
// middleware), falling back to the "X-User-ID" header. It returns "" when
// neither is present.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		return strings.TrimSpace(c.GetHeader("X-User-ID"))
	}
	return ""
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination reads page and page_size from the query string.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"))
}
