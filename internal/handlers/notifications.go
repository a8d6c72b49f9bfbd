package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colonylab/nestfeed/internal/feed"
	apperrors "github.com/colonylab/nestfeed/pkg/errors"
	"github.com/colonylab/nestfeed/pkg/response"
)

// NotificationHandler exposes the per-account notification feed over HTTP.
type NotificationHandler struct {
	service *feed.Service
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *feed.Service) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type markReadRequest struct {
	Timestamp int64 `json:"timestamp" binding:"required,gt=0"`
}

// NextPage returns the account's next page of notifications and advances the
// pagination cursor.
func (h *NotificationHandler) NextPage(c *gin.Context) {
	account := accountParam(c)
	limit := parseIntQuery(c, "limit", 10)

	page, err := h.service.NextPage(c.Request.Context(), account, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"notifications": page,
		"count":         len(page),
	})
}

// ResetCursor rewinds the account's pagination cursor to the newest entry.
func (h *NotificationHandler) ResetCursor(c *gin.Context) {
	if err := h.service.ResetCursor(c.Request.Context(), accountParam(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

// UnreadCount reports how many notifications the account has not read.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.service.UnreadCount(c.Request.Context(), accountParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread": count})
}

// MarkRead marks the account's notifications at one timestamp as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("timestamp is required"))
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), accountParam(c), req.Timestamp); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": true})
}

// MarkAllRead marks the account's whole feed as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	if err := h.service.MarkAllRead(c.Request.Context(), accountParam(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": true})
}

// MarkReadTo acknowledges everything at or before a timestamp.
func (h *NotificationHandler) MarkReadTo(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("timestamp is required"))
		return
	}

	view, err := h.service.Account(c.Request.Context(), accountParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := view.MarkReadTo(c.Request.Context(), req.Timestamp); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": true})
}

// Sync refreshes the shared cache and folds anything new into the account's
// feed.
func (h *NotificationHandler) Sync(c *gin.Context) {
	added, err := h.service.SyncAccount(c.Request.Context(), accountParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"new_notifications": added})
}
