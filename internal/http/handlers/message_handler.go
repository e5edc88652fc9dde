// Message HTTP handlers.
//
// This file exposes REST endpoints for local messages:
//   - POST /messages             (store a message and enqueue its relay job)
//   - GET  /messages/{id}        (fetch a message with its attachments)
//   - POST /messages/{id}/relay  (relay a stored message synchronously)
//
// Handlers are transport-thin: they normalize input, delegate to the
// services, and translate results into HTTP responses.
package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/services"
)

//
// DTOs
//

// AttachmentRequest describes one media item of a new message.
type AttachmentRequest struct {
	MimeType          string `json:"mimetype"`
	URL               string `json:"url" binding:"required"`
	Title             string `json:"title"`
	EnclosureMimeType string `json:"enclosure_mimetype"`
	EnclosureURL      string `json:"enclosure_url"`
	EnclosureTitle    string `json:"enclosure_title"`
}

// CreateMessageRequest is the JSON payload for a new local message.
type CreateMessageRequest struct {
	Content     string              `json:"content" binding:"required"`
	Source      string              `json:"source"`
	Attachments []AttachmentRequest `json:"attachments" binding:"dive"`
}

// CreateMessageResponse returns the stored message and its relay job, if any.
type CreateMessageResponse struct {
	Message *domain.Message  `json:"message"`
	Job     *domain.RelayJob `json:"job,omitempty"`
}

// RelayResponse is the result of a synchronous relay.
type RelayResponse struct {
	MessageID string                 `json:"message_id"`
	Outcome   domain.DeliveryOutcome `json:"outcome"`
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent converts CRLF/CR to LF, collapses long blank runs, and
// trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func toAttachments(in []AttachmentRequest) []domain.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Attachment{
			MimeType:          strings.TrimSpace(a.MimeType),
			URL:               strings.TrimSpace(a.URL),
			Title:             strings.TrimSpace(a.Title),
			EnclosureMimeType: strings.TrimSpace(a.EnclosureMimeType),
			EnclosureURL:      strings.TrimSpace(a.EnclosureURL),
			EnclosureTitle:    strings.TrimSpace(a.EnclosureTitle),
		})
	}
	return out
}

//
// Handlers
//

// CreateMessage stores a message authored by the caller.
func (h *Handlers) CreateMessage(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID required")
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	content := sanitizeContent(req.Content)

	m, job, err := h.msgSvc.Create(c.Request.Context(), uid, content, req.Source, toAttachments(req.Attachments))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyContent),
			errors.Is(err, services.ErrTooLong),
			errors.Is(err, services.ErrInvalidAttachment),
			errors.Is(err, services.ErrTooManyAttachments):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, CreateMessageResponse{Message: m, Job: job})
}

// GetMessage returns one message.
func (h *Handlers) GetMessage(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}
	m, err := h.msgSvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrMessageNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, m)
}

// RelayMessage relays a stored message now and reports the outcome. Failed
// deliveries are still a 200: the outcome carries the verdict.
func (h *Handlers) RelayMessage(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}
	ctx := c.Request.Context()
	m, err := h.msgSvc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrMessageNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeRelayFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, RelayResponse{MessageID: m.ID, Outcome: h.relay.Relay(ctx, m)})
}
