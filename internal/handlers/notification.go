package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"social-chat-service/internal/logger"
	"social-chat-service/internal/middleware"
	"social-chat-service/internal/models"
	"social-chat-service/internal/pagination"
)

// NotificationService serves a user's notification inbox.
type NotificationService interface {
	List(ctx context.Context, receiverID string, req pagination.Request) (pagination.Page[models.NotificationWithSender], error)
	CountUnread(ctx context.Context, receiverID string) (int, error)
	MarkRead(ctx context.Context, receiverID, id string) (models.Notification, error)
}

// NotificationHandler manages the /notification endpoints.
type NotificationHandler struct {
	notifications NotificationService
	log           *logger.Logger
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(notifications NotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, log: log}
}

// Register mounts the notification routes on group.
func (h *NotificationHandler) Register(group gin.IRouter) {
	group.GET("/get-notifications", h.GetNotifications)
	group.GET("/get-unread-notifications", h.GetUnreadNotifications)
	group.PUT("/mark-notification-as-read/:id", h.MarkNotificationAsRead)
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	req := pagination.Parse(c.Query("page"), c.Query("limit"))
	page, err := h.notifications.List(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetUnreadNotifications responds with the bare unread count.
func (h *NotificationHandler) GetUnreadNotifications(c *gin.Context) {
	count, err := h.notifications.CountUnread(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, count)
}

func (h *NotificationHandler) MarkNotificationAsRead(c *gin.Context) {
	n, err := h.notifications.MarkRead(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
