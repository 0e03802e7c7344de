// History HTTP handlers.
//
// This file exposes the per-user dialog history endpoints:
//   - GET    /v1/users/{id}/history   (list, paginated, retention-bounded)
//   - DELETE /v1/users/{id}/history   (clear everything for the user)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkurilov/go-companion-backend/internal/domain"
	"github.com/dkurilov/go-companion-backend/internal/utils"
)

// HistoryResponse contains a page of dialog messages and pagination metadata.
type HistoryResponse struct {
	Messages   []domain.DialogMessage `json:"messages"`
	Pagination Pagination             `json:"pagination"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetHistory returns a paginated view of the user's retained dialog history,
// oldest first. Messages past the retention window are never included even
// if the janitor has not swept them yet.
func (h *Handlers) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()
	uid := c.Param("id")
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id required")
		return
	}

	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)

	items, total, err := h.dlgSvc.Page(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, HistoryResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// DeleteHistory removes the user's entire dialog history. Deleting a user
// with no history succeeds with the same result.
func (h *Handlers) DeleteHistory(c *gin.Context) {
	ctx := c.Request.Context()
	uid := c.Param("id")
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id required")
		return
	}

	if err := h.dlgSvc.Clear(ctx, uid); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
