// Link HTTP handlers.
//
// The caller's link on a platform is a singleton resource:
//   - GET    /links/{platform}
//   - PUT    /links/{platform}
//   - DELETE /links/{platform}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-relay-bridge/internal/services"
)

// PutLinkRequest connects or updates a link. An empty credentials value
// selects the legacy permission-based API.
type PutLinkRequest struct {
	RemoteID    string `json:"remote_id" binding:"required"`
	Credentials string `json:"credentials"`
	SyncFlags   int    `json:"sync_flags"`
}

// GetLink returns the caller's link on the platform.
func (h *Handlers) GetLink(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID required")
		return
	}
	l, err := h.linkSvc.Get(c.Request.Context(), uid, c.Param("platform"))
	if err != nil {
		h.linkError(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

// PutLink connects the caller to the platform or replaces the link.
func (h *Handlers) PutLink(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID required")
		return
	}
	var req PutLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "remote_id required")
		return
	}
	l, err := h.linkSvc.Upsert(c.Request.Context(), uid, c.Param("platform"), req.RemoteID, req.Credentials, req.SyncFlags)
	if err != nil {
		h.linkError(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

// DeleteLink disconnects the caller from the platform.
func (h *Handlers) DeleteLink(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID required")
		return
	}
	if err := h.linkSvc.Disconnect(c.Request.Context(), uid, c.Param("platform")); err != nil {
		h.linkError(c, err)
		return
	}
	noContent(c)
}

func (h *Handlers) linkError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrLinkNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "link not found")
	case errors.Is(err, services.ErrUnknownPlatform):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown platform")
	case errors.Is(err, services.ErrEmptyPlatform),
		errors.Is(err, services.ErrEmptyRemoteID),
		errors.Is(err, services.ErrInvalidSyncFlags):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeLinkFailed, err.Error())
	}
}
