package model

// PushRecipient is the user-directory view the pipeline needs: who the user
// is, whether they opted into push, and which device tokens they registered.
type PushRecipient struct {
	UserID      string
	PushEnabled bool
	Tokens      []string
}

// DeliveryResult is the aggregate per-recipient outcome returned by Submit.
// Device-level outcomes are only observable later via the delivery queue.
type DeliveryResult struct {
	NotificationIDs []string `json:"notification_ids"`
	Accepted        int      `json:"accepted"`
	SkippedNoToken  int      `json:"skipped_no_token"`
	SkippedDisabled int      `json:"skipped_disabled"`
	Enqueued        int      `json:"enqueued"`
}
