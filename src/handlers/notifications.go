package handlers

import (
	"net/http"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/gin-gonic/gin"
)

// NotificationHandler serves the notification center
type NotificationHandler struct {
	notifications *services.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

type notificationQuery struct {
	Unread bool `form:"unread"`
	Limit  int  `form:"limit" binding:"omitempty,min=1"`
}

// HandleList returns recent notifications, optionally unread only
func (h *NotificationHandler) HandleList(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var q notificationQuery
	if !middleware.BindQuery(c, &q) {
		return
	}

	items, err := h.notifications.List(c.Request.Context(), userID, q.Unread, q.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "count": len(items)})
}

// HandleMarkRead marks one notification as read
func (h *NotificationHandler) HandleMarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), id, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// HandleMarkAllRead marks every notification as read
func (h *NotificationHandler) HandleMarkAllRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.notifications.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
