package repository

import (
	"database/sql"
	"time"

	"github.com/b2stos/nexuszap-sub000/internal/model"
)

type WebhookEventRepositoryInterface interface {
	Insert(ev *model.WebhookEvent) (bool, error)
	GetByID(id int) (*model.WebhookEvent, error)
	MarkProcessed(id int, orphan bool) error
	MarkError(id int, message string) error
	LastReceivedAt(channelID int) (*time.Time, error)
	OrphanCount(channelID int) (int, error)
}

type WebhookEventRepository struct {
	DB *sql.DB
}

// Insert stores a raw provider event. The partial unique index on
// (provider_message_id, event_type, reported_status) absorbs provider-side
// webhook retries: a duplicate insert is a no-op and Insert returns false so
// the caller can skip processing instead of double-counting.
func (r *WebhookEventRepository) Insert(ev *model.WebhookEvent) (bool, error) {
	ev.ReceivedAt = time.Now()
	query := `
        INSERT INTO webhook_events (channel_id, provider_message_id, event_type, reported_status, payload, received_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (provider_message_id, event_type, reported_status) WHERE provider_message_id IS NOT NULL
        DO NOTHING
        RETURNING id
    `
	err := r.DB.QueryRow(query,
		ev.ChannelID, ev.ProviderMessageID, string(ev.EventType), ev.ReportedStatus, ev.Payload, ev.ReceivedAt,
	).Scan(&ev.ID)
	if err == sql.ErrNoRows {
		return false, nil // duplicate
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *WebhookEventRepository) GetByID(id int) (*model.WebhookEvent, error) {
	query := `
        SELECT id, channel_id, provider_message_id, event_type, reported_status, payload,
               processed, orphan, processing_error, received_at
        FROM webhook_events WHERE id = $1
    `
	var ev model.WebhookEvent
	err := r.DB.QueryRow(query, id).Scan(
		&ev.ID, &ev.ChannelID, &ev.ProviderMessageID, &ev.EventType, &ev.ReportedStatus,
		&ev.Payload, &ev.Processed, &ev.Orphan, &ev.ProcessingError, &ev.ReceivedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (r *WebhookEventRepository) MarkProcessed(id int, orphan bool) error {
	_, err := r.DB.Exec(
		`UPDATE webhook_events SET processed = TRUE, orphan = $2, processing_error = '' WHERE id = $1`,
		id, orphan,
	)
	return err
}

func (r *WebhookEventRepository) MarkError(id int, message string) error {
	_, err := r.DB.Exec(
		`UPDATE webhook_events SET processed = TRUE, processing_error = $2 WHERE id = $1`,
		id, message,
	)
	return err
}

func (r *WebhookEventRepository) LastReceivedAt(channelID int) (*time.Time, error) {
	var at sql.NullTime
	err := r.DB.QueryRow(
		`SELECT MAX(received_at) FROM webhook_events WHERE channel_id = $1`,
		channelID,
	).Scan(&at)
	if err != nil {
		return nil, err
	}
	if !at.Valid {
		return nil, nil
	}
	return &at.Time, nil
}

func (r *WebhookEventRepository) OrphanCount(channelID int) (int, error) {
	var n int
	err := r.DB.QueryRow(
		`SELECT COUNT(*) FROM webhook_events WHERE channel_id = $1 AND orphan = TRUE`,
		channelID,
	).Scan(&n)
	return n, err
}

var _ WebhookEventRepositoryInterface = (*WebhookEventRepository)(nil)
