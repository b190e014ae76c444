package api

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campuspush/internal/realtime"
)

// EventSubscriber is the realtime hub surface the stream handler needs.
type EventSubscriber interface {
	Subscribe(ctx context.Context, recipientID string) <-chan realtime.Event
}

type StreamHandler struct {
	hub    EventSubscriber
	logger *zap.Logger
}

func NewStreamHandler(hub EventSubscriber, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, logger: logger}
}

// Stream handles GET /notifications/stream. It holds the connection open and
// forwards insert events for the authenticated user as server-sent events
// until the client disconnects.
func (h *StreamHandler) Stream(c *gin.Context) {
	userID := c.GetString("user_id")

	ctx := c.Request.Context()
	events := h.hub.Subscribe(ctx, userID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.logger.Info("Realtime stream opened", zap.String("user_id", userID))

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("notification", event)
			return true
		}
	})

	h.logger.Info("Realtime stream closed", zap.String("user_id", userID))
}
