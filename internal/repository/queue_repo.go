package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"campuspush/internal/model"
)

var ErrNotFound = errors.New("row not found")

type QueueRepository struct {
	db *pgxpool.Pool
}

func NewQueueRepository(db *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Enqueue(ctx context.Context, item *model.DeliveryQueueItem) error {
	data, err := json.Marshal(item.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload data: %w", err)
	}

	query := `
		INSERT INTO delivery_queue (id, notification_id, device_token, title, body, data, channel, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		item.ID, item.NotificationID, item.DeviceToken,
		item.Title, item.Body, data, item.Channel,
	).Scan(&item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue delivery: %w", err)
	}
	item.Status = model.StatusPending
	return nil
}

// FetchPending returns up to limit retryable rows, oldest first so no row
// starves behind newer traffic.
func (r *QueueRepository) FetchPending(ctx context.Context, limit, maxAttempts int) ([]model.DeliveryQueueItem, error) {
	query := `
		SELECT id, notification_id, device_token, title, body, data, channel,
		       status, attempts, last_attempt_at, error_message, created_at, processed_at
		FROM delivery_queue
		WHERE status = 'pending' AND attempts < $2
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending deliveries: %w", err)
	}
	defer rows.Close()

	var items []model.DeliveryQueueItem
	for rows.Next() {
		var item model.DeliveryQueueItem
		var data []byte
		err := rows.Scan(
			&item.ID,
			&item.NotificationID,
			&item.DeviceToken,
			&item.Title,
			&item.Body,
			&data,
			&item.Channel,
			&item.Status,
			&item.Attempts,
			&item.LastAttemptAt,
			&item.ErrorMessage,
			&item.CreatedAt,
			&item.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery queue item: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &item.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload data: %w", err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkSent records a successful delivery. The status filter makes the update
// a no-op on rows another observation already finished.
func (r *QueueRepository) MarkSent(ctx context.Context, id string) error {
	query := `
		UPDATE delivery_queue
		SET status = 'sent', attempts = attempts + 1,
		    last_attempt_at = NOW(), processed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark delivery as sent: %w", err)
	}
	return nil
}

// RecordFailure counts one failed attempt. The row stays pending until the
// attempt ceiling is reached, then flips to the terminal failed state.
func (r *QueueRepository) RecordFailure(ctx context.Context, id, errMsg string, maxAttempts int) error {
	query := `
		UPDATE delivery_queue
		SET attempts = attempts + 1,
		    last_attempt_at = NOW(),
		    error_message = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END,
		    processed_at = CASE WHEN attempts + 1 >= $3 THEN NOW() ELSE processed_at END
		WHERE id = $1 AND status = 'pending'
	`
	if _, err := r.db.Exec(ctx, query, id, errMsg, maxAttempts); err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}
	return nil
}

func (r *QueueRepository) CountByStatus(ctx context.Context) (model.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM delivery_queue
	`
	var stats model.QueueStats
	err := r.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Sent, &stats.Failed)
	if err != nil {
		return stats, fmt.Errorf("failed to count delivery queue: %w", err)
	}
	return stats, nil
}

// DeleteTerminalBefore sweeps sent/failed rows older than the cutoff. It only
// touches terminal rows, so it is safe to run while a cycle is in flight.
func (r *QueueRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM delivery_queue
		WHERE status IN ('sent', 'failed') AND created_at < $1
	`
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up delivery queue: %w", err)
	}
	return tag.RowsAffected(), nil
}
