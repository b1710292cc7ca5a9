package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"socialhub/internal/microservices/http-api/middleware"
	"socialhub/internal/microservices/http-api/models"
	"socialhub/internal/microservices/http-api/repository"
	"socialhub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

const requestTimeout = 5 * time.Second

type NotificationHandler struct {
	svc service.NotificationService
}

func NewNotificationHandler(svc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// RegisterRoutes mounts the notification routes. The router is expected to
// already run AuthMiddleware.
func (h *NotificationHandler) RegisterRoutes(r gin.IRouter) {
	notifications := r.Group("/notifications")
	{
		notifications.POST("", h.Create)
		notifications.GET("", h.List)
		notifications.GET("/new", h.ListSince)
		notifications.GET("/unread", h.UnreadCount)
		notifications.POST("/mark-all-read", h.MarkAllAsRead)
	}

	notification := r.Group("/notification")
	{
		notification.PATCH("/:id/read", h.MarkAsRead)
		notification.DELETE("/:id", h.Delete)
	}
}

// Create stores a notification on behalf of a collaborator (like, comment,
// follow or message handlers) and pushes it to the owner's devices. The
// actor is always the authenticated caller.
func (h *NotificationHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.CreateNotificationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.FromUser.ID {
	case "":
		req.FromUser.ID = userID
	case userID:
	default:
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot create notifications on behalf of another user"})
		return
	}
	if req.FromUser.Name == "" {
		req.FromUser.Name = c.GetString(middleware.ContextUsername)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	notification, err := h.svc.Create(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, notification)
}

// List returns a page of the user's notifications, newest first
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	filter := repository.ListFilter{Page: page, Limit: limit}

	if raw := c.Query("isRead"); raw != "" {
		isRead, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "isRead must be true or false"})
			return
		}
		filter.IsRead = &isRead
	}
	if raw := c.Query("type"); raw != "" {
		t := models.NotificationType(raw)
		if !t.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown notification type"})
			return
		}
		filter.Type = t
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := h.svc.List(ctx, userID, filter)
	if err != nil {
		writeError(c, err)
		return
	}

	notifications := result.Notifications
	if notifications == nil {
		notifications = []models.Notification{}
	}
	totalPages := int((result.Total + int64(result.Limit) - 1) / int64(result.Limit))

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"unreadCount":   result.UnreadCount,
		"page":          result.Page,
		"limit":         result.Limit,
		"total":         result.Total,
		"totalPages":    totalPages,
	})
}

// ListSince returns notifications with an id greater than the since watermark
func (h *NotificationHandler) ListSince(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	since, err := strconv.ParseInt(c.Query("since"), 10, 64)
	if err != nil || since < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a notification id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	notifications, err := h.svc.ListSince(ctx, userID, since)
	if err != nil {
		writeError(c, err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	count, err := h.svc.UnreadCount(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkAsRead marks a specific notification as read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := notificationID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.MarkAsRead(ctx, userID, id); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// MarkAllAsRead marks all notifications as read for the user
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.MarkAllAsRead(ctx, userID); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := notificationID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.Delete(ctx, userID, id); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return "", false
	}
	return userID, true
}

func notificationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotificationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
	case errors.Is(err, service.ErrInvalidNotification):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
