package model

import "time"

type RecipientStatus string

const (
	RecipientQueued    RecipientStatus = "queued"
	RecipientSent      RecipientStatus = "sent"
	RecipientDelivered RecipientStatus = "delivered"
	RecipientRead      RecipientStatus = "read"
	RecipientFailed    RecipientStatus = "failed"
	RecipientSkipped   RecipientStatus = "skipped"
)

// ErrorClass categorizes a failed send attempt. Transient failures are
// eligible for automatic re-queue in a later batch; terminal ones wait for an
// operator retry; systemic ones pause the whole campaign.
type ErrorClass string

const (
	ErrorTransient ErrorClass = "transient"
	ErrorTerminal  ErrorClass = "terminal"
	ErrorSystemic  ErrorClass = "systemic"
)

type Recipient struct {
	ID                int             `db:"id" json:"id"`
	CampaignID        int             `db:"campaign_id" json:"campaign_id"`
	ContactID         int             `db:"contact_id" json:"contact_id"`
	Status            RecipientStatus `db:"status" json:"status"`
	LastErrorCode     string          `db:"last_error_code" json:"last_error_code,omitempty"`
	LastErrorMessage  string          `db:"last_error_message" json:"last_error_message,omitempty"`
	LastErrorClass    ErrorClass      `db:"last_error_class" json:"last_error_class,omitempty"`
	ProviderMessageID *string         `db:"provider_message_id" json:"provider_message_id,omitempty"`
	IdempotencyKey    string          `db:"idempotency_key" json:"-"`
	AttemptCount      int             `db:"attempt_count" json:"attempt_count"`
	ClaimedAt         *time.Time      `db:"claimed_at" json:"-"`
	ClaimedBy         string          `db:"claimed_by" json:"-"`
	SentAt            *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt            *time.Time      `db:"read_at" json:"read_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

func (s RecipientStatus) Terminal() bool {
	switch s {
	case RecipientRead, RecipientFailed, RecipientSkipped:
		return true
	}
	return false
}
