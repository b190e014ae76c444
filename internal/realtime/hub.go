package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"campuspush/internal/model"
)

// Event is what a connected session receives when a notification record is
// inserted for it.
type Event struct {
	NotificationID string                 `json:"notification_id"`
	Type           model.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Body           string                 `json:"body"`
	Data           map[string]any         `json:"data,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Hub fans notification-insert events out to connected browser sessions over
// redis pub/sub, one channel per recipient. This path is best-effort: it only
// reaches currently-connected sessions and has no queue or retry; offline
// devices rely on the mobile push pipeline.
type Hub struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewHub(rdb *redis.Client, logger *zap.Logger) *Hub {
	return &Hub{rdb: rdb, logger: logger}
}

func channelFor(recipientID string) string {
	return "notifications:" + recipientID
}

// Publish pushes an insert event to any live session of the recipient.
// Errors are logged and swallowed: realtime delivery must never fail the
// write path that produced the record.
func (h *Hub) Publish(ctx context.Context, n *model.NotificationRecord) {
	event := Event{
		NotificationID: n.ID,
		Type:           n.Type,
		Title:          n.Title,
		Body:           n.Body,
		Data:           n.Data,
		CreatedAt:      n.CreatedAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal realtime event", zap.Error(err))
		return
	}

	if err := h.rdb.Publish(ctx, channelFor(n.RecipientID), payload).Err(); err != nil {
		h.logger.Error("Failed to publish realtime event",
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err),
		)
	}
}

// Subscribe opens one insert-event subscription for a session. The returned
// channel closes when the context is cancelled. Reconnection beyond what the
// redis client does natively is the caller's problem.
func (h *Hub) Subscribe(ctx context.Context, recipientID string) <-chan Event {
	pubsub := h.rdb.Subscribe(ctx, channelFor(recipientID))
	events := make(chan Event)

	go func() {
		defer close(events)
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					h.logger.Error("Failed to decode realtime event", zap.Error(err))
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events
}
