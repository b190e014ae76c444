package model

import "time"

type DeliveryStatus string

const (
	StatusPending DeliveryStatus = "pending"
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
)

// Terminal reports whether the status is final. Terminal rows are never
// reprocessed, only garbage-collected after the retention window.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// DeliveryQueueItem is one attempted push delivery of a notification to one
// device token. The payload is denormalized so the queue can deliver even if
// the source record is later modified. Retries reuse the same row; attempts
// only ever increases.
type DeliveryQueueItem struct {
	ID             string
	NotificationID string
	DeviceToken    string
	Title          string
	Body           string
	Data           map[string]any
	Channel        string
	Status         DeliveryStatus
	Attempts       int
	LastAttemptAt  *time.Time
	ErrorMessage   *string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}

// QueueStats is the per-status row count exposed by the status endpoint.
type QueueStats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}
