package model

import "time"

type NotificationType string

const (
	TypeMessage         NotificationType = "message"
	TypeFollow          NotificationType = "follow"
	TypePostInteraction NotificationType = "post_interaction"
	TypeCampusEvent     NotificationType = "campus_event"
	TypeStudyReminder   NotificationType = "study_reminder"
	TypeAnnouncement    NotificationType = "announcement"
	TypeSystem          NotificationType = "system"
	TypeTest            NotificationType = "test"
	TypeCustom          NotificationType = "custom"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeMessage, TypeFollow, TypePostInteraction, TypeCampusEvent,
		TypeStudyReminder, TypeAnnouncement, TypeSystem, TypeTest, TypeCustom:
		return true
	}
	return false
}

// NotificationRecord is the durable representation of a notification event.
// It is immutable after creation except for IsRead.
type NotificationRecord struct {
	ID          string
	RecipientID string
	SenderID    *string // nil for system-generated notifications
	Type        NotificationType
	Title       string
	Body        string
	Data        map[string]any
	IsRead      bool
	CreatedAt   time.Time
}

// Message is the client-facing payload of a notification request.
type Message struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Data    map[string]any `json:"data,omitempty"`
	Channel string         `json:"channel,omitempty"`
}

const DefaultChannel = "default"

const (
	MaxTitleLength = 200
	MaxBodyLength  = 2000
)
