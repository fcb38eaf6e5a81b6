package model

import "time"

type WebhookEventType string

const (
	WebhookStatus  WebhookEventType = "status"  // delivery/read confirmations
	WebhookInbound WebhookEventType = "inbound" // message from the contact
	WebhookUnknown WebhookEventType = "unknown"
)

// WebhookEvent is one raw provider callback, stored before processing so the
// reconciler can run on its own asynchronous path and failures stay visible.
type WebhookEvent struct {
	ID                int              `db:"id" json:"id"`
	ChannelID         int              `db:"channel_id" json:"channel_id"`
	ProviderMessageID *string          `db:"provider_message_id" json:"provider_message_id,omitempty"`
	EventType         WebhookEventType `db:"event_type" json:"event_type"`
	ReportedStatus    string           `db:"reported_status" json:"reported_status,omitempty"`
	Payload           []byte           `db:"payload" json:"-"`
	Processed         bool             `db:"processed" json:"processed"`
	Orphan            bool             `db:"orphan" json:"orphan"`
	ProcessingError   string           `db:"processing_error" json:"processing_error,omitempty"`
	ReceivedAt        time.Time        `db:"received_at" json:"received_at"`
}
