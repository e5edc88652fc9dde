package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/services"
)

// ListJobsResponse contains a page of relay jobs and pagination metadata.
type ListJobsResponse struct {
	Jobs       []domain.RelayJob `json:"jobs"`
	Pagination Pagination        `json:"pagination"`
}

// ListJobs returns a page of the relay queue, optionally filtered by status.
func (h *Handlers) ListJobs(c *gin.Context) {
	page, pageSize := clampPagination(c)
	jobs, total, err := h.msgSvc.ListJobs(c.Request.Context(), c.Query("status"), page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStatus) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid status")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if jobs == nil {
		jobs = []domain.RelayJob{}
	}
	ok(c, http.StatusOK, ListJobsResponse{Jobs: jobs, Pagination: newPagination(page, pageSize, total)})
}
