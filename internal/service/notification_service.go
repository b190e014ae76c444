package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campuspush/internal/model"
	"campuspush/pkg/metrics"
)

var (
	// ErrValidation marks a malformed submission. Nothing is written.
	ErrValidation = errors.New("validation error")
	// ErrUnauthorized marks a caller lacking rights for the requested
	// target scope. Nothing is written.
	ErrUnauthorized = errors.New("caller not authorized for target")
)

const RoleAdmin = "admin"

// Caller is the caller-asserted identity attached to a submission, taken
// from the verified JWT.
type Caller struct {
	UserID string
	Role   string
}

type RecordStore interface {
	Insert(ctx context.Context, n *model.NotificationRecord) error
}

type QueueWriter interface {
	Enqueue(ctx context.Context, item *model.DeliveryQueueItem) error
}

// Directory is the user-directory lookup owned by the external user/auth
// subsystem: resolve a target into {id, pushEnabled, tokens} tuples.
type Directory interface {
	FindRecipients(ctx context.Context, userIDs []string) ([]model.PushRecipient, error)
	FindCampusRecipients(ctx context.Context, domain string) ([]model.PushRecipient, error)
	FindAllRecipients(ctx context.Context) ([]model.PushRecipient, error)
}

// RealtimePublisher pushes record inserts to live sessions, best-effort.
type RealtimePublisher interface {
	Publish(ctx context.Context, n *model.NotificationRecord)
}

// NotificationService is the single write path into the pipeline: it
// validates and authorizes a submission, persists one record per recipient
// and fans deliveries out to the queue. It never talks to the push gateway;
// delivery belongs to the asynchronous queue processor.
type NotificationService struct {
	records  RecordStore
	queue    QueueWriter
	dir      Directory
	realtime RealtimePublisher
	logger   *zap.Logger
}

func NewNotificationService(
	records RecordStore,
	queue QueueWriter,
	dir Directory,
	realtime RealtimePublisher,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		records:  records,
		queue:    queue,
		dir:      dir,
		realtime: realtime,
		logger:   logger,
	}
}

// Submit translates one domain event into persisted notifications plus
// queued deliveries and reports the aggregate per-recipient outcome.
// A target resolving to zero recipients is success with zero work.
func (s *NotificationService) Submit(
	ctx context.Context,
	typ model.NotificationType,
	target model.Target,
	msg model.Message,
	caller Caller,
) (*model.DeliveryResult, error) {
	if err := validate(typ, target, msg); err != nil {
		return nil, err
	}

	if target.Broadcast() && caller.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: %s target requires admin role", ErrUnauthorized, target.Kind)
	}

	recipients, err := s.resolve(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target: %w", err)
	}

	if msg.Channel == "" {
		msg.Channel = model.DefaultChannel
	}

	var senderID *string
	if caller.UserID != "" {
		senderID = &caller.UserID
	}

	result := &model.DeliveryResult{}
	for _, recipient := range recipients {
		record := &model.NotificationRecord{
			ID:          uuid.NewString(),
			RecipientID: recipient.UserID,
			SenderID:    senderID,
			Type:        typ,
			Title:       msg.Title,
			Body:        msg.Body,
			Data:        msg.Data,
		}
		if err := s.records.Insert(ctx, record); err != nil {
			s.logger.Error("Failed to insert notification record",
				zap.String("recipient_id", recipient.UserID),
				zap.Error(err),
			)
			continue
		}
		result.NotificationIDs = append(result.NotificationIDs, record.ID)

		if s.realtime != nil {
			s.realtime.Publish(ctx, record)
		}

		switch {
		case !recipient.PushEnabled:
			result.SkippedDisabled++
		case len(recipient.Tokens) == 0:
			result.SkippedNoToken++
		default:
			enqueued := s.fanOut(ctx, record, msg.Channel, recipient.Tokens)
			result.Enqueued += enqueued
			if enqueued > 0 {
				result.Accepted++
			}
		}
	}

	metrics.IncrementNotificationSubmitted(string(typ))
	s.logger.Info("Notification submitted",
		zap.String("type", string(typ)),
		zap.String("target_kind", string(target.Kind)),
		zap.Int("recipients", len(recipients)),
		zap.Int("enqueued", result.Enqueued),
	)

	return result, nil
}

// fanOut writes one delivery queue item per device token, all referencing
// the same record. The payload is denormalized into the row so later record
// edits cannot change what gets delivered.
func (s *NotificationService) fanOut(ctx context.Context, record *model.NotificationRecord, channel string, tokens []string) int {
	enqueued := 0
	for _, token := range tokens {
		item := &model.DeliveryQueueItem{
			ID:             uuid.NewString(),
			NotificationID: record.ID,
			DeviceToken:    token,
			Title:          record.Title,
			Body:           record.Body,
			Data:           record.Data,
			Channel:        channel,
		}
		if err := s.queue.Enqueue(ctx, item); err != nil {
			s.logger.Error("Failed to enqueue delivery",
				zap.String("notification_id", record.ID),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}
	return enqueued
}

func (s *NotificationService) resolve(ctx context.Context, target model.Target) ([]model.PushRecipient, error) {
	switch target.Kind {
	case model.TargetUser:
		return s.dir.FindRecipients(ctx, []string{target.UserID})
	case model.TargetUsers:
		return s.dir.FindRecipients(ctx, target.UserIDs)
	case model.TargetCampus:
		return s.dir.FindCampusRecipients(ctx, target.Domain)
	case model.TargetAll:
		return s.dir.FindAllRecipients(ctx)
	default:
		return nil, fmt.Errorf("unknown target kind %q", target.Kind)
	}
}

func validate(typ model.NotificationType, target model.Target, msg model.Message) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown notification type %q", ErrValidation, typ)
	}
	if err := target.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(msg.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(msg.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if len(msg.Title) > model.MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrValidation, model.MaxTitleLength)
	}
	if len(msg.Body) > model.MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters", ErrValidation, model.MaxBodyLength)
	}
	return nil
}
