package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campuspush/internal/model"
	"campuspush/internal/repository"
	"campuspush/internal/service"
)

// Submitter is the write path into the pipeline.
type Submitter interface {
	Submit(ctx context.Context, typ model.NotificationType, target model.Target, msg model.Message, caller service.Caller) (*model.DeliveryResult, error)
}

// InboxStore is the recipient-facing slice of record persistence.
type InboxStore interface {
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]model.NotificationRecord, error)
	ListUnread(ctx context.Context, recipientID string, limit int) ([]model.NotificationRecord, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
}

type QueueInspector interface {
	CountByStatus(ctx context.Context) (model.QueueStats, error)
}

type NotificationHandler struct {
	svc    Submitter
	inbox  InboxStore
	queue  QueueInspector
	logger *zap.Logger
}

func NewNotificationHandler(svc Submitter, inbox InboxStore, queue QueueInspector, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		svc:    svc,
		inbox:  inbox,
		queue:  queue,
		logger: logger,
	}
}

type submitRequest struct {
	Type    model.NotificationType `json:"type"`
	Target  model.Target           `json:"target"`
	Message model.Message          `json:"message"`
}

// Submit handles POST /notifications
func (h *NotificationHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	caller := service.Caller{
		UserID: c.GetString("user_id"),
		Role:   c.GetString("role"),
	}

	result, err := h.svc.Submit(c.Request.Context(), req.Type, req.Target, req.Message, caller)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		case errors.Is(err, service.ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": err.Error()})
		default:
			h.logger.Error("Submit failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to submit notification"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// Status handles GET /notifications/status
func (h *NotificationHandler) Status(c *gin.Context) {
	stats, err := h.queue.CountByStatus(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read queue stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to read queue status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result": gin.H{
			"queue": stats,
			"features": gin.H{
				"push":     true,
				"realtime": true,
			},
		},
	})
}

// List handles GET /notifications
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	records, err := h.inbox.ListByRecipient(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": toResponses(records)})
}

// ListUnread handles GET /notifications/unread
func (h *NotificationHandler) ListUnread(c *gin.Context) {
	userID := c.GetString("user_id")
	limit := queryInt(c, "limit", 20)

	records, err := h.inbox.ListUnread(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list unread notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": toResponses(records)})
}

// MarkRead handles PUT /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID := c.GetString("user_id")
	id := c.Param("id")

	if err := h.inbox.MarkRead(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "notification not found"})
			return
		}
		h.logger.Error("Failed to mark notification as read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to mark as read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkAllRead handles PUT /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.GetString("user_id")

	if err := h.inbox.MarkAllRead(c.Request.Context(), userID); err != nil {
		h.logger.Error("Failed to mark all notifications as read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to mark all as read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type notificationResponse struct {
	ID        string                 `json:"id"`
	SenderID  *string                `json:"sender_id,omitempty"`
	Type      model.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]any         `json:"data,omitempty"`
	IsRead    bool                   `json:"is_read"`
	CreatedAt string                 `json:"created_at"`
}

func toResponses(records []model.NotificationRecord) []notificationResponse {
	responses := make([]notificationResponse, 0, len(records))
	for _, n := range records {
		responses = append(responses, notificationResponse{
			ID:        n.ID,
			SenderID:  n.SenderID,
			Type:      n.Type,
			Title:     n.Title,
			Body:      n.Body,
			Data:      n.Data,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}
	return responses
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
