package repository

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/b2stos/nexuszap-sub000/internal/model"
)

type RecipientRepositoryInterface interface {
	// Claiming and dispatch-side transitions
	ClaimQueued(campaignID, n int, lease time.Duration, token string) ([]*model.Recipient, error)
	RefreshClaim(id int, token string) (bool, error)
	ReleaseClaims(campaignID int, ids []int, token string) error
	EnsureIdempotencyKey(id int, key string) (string, error)
	MarkSent(id int, providerMessageID string) error
	MarkFailed(id int, code, message string, class model.ErrorClass) error

	// Reconciler-side transitions (guarded in SQL, regressions are no-ops)
	MarkDelivered(id int, at time.Time) (bool, error)
	MarkRead(id int, at time.Time) (bool, error)

	// Operator / state-machine operations
	RequeueTransient(campaignID, maxAttempts int) (int, error)
	RetryFailed(campaignID int) (int, error)
	SkipQueued(campaignID int) (int, error)

	// Lookups
	FindByProviderMessageID(providerMessageID string) (*model.Recipient, error)
	List(campaignID int, status model.RecipientStatus, offset, limit int) ([]*model.Recipient, int, error)
	CountByStatus(campaignID int) (map[model.RecipientStatus]int, error)
	CountQueued(campaignID int) (int, error)
	CountRetryable(campaignID, maxAttempts int) (int, error)
	TopErrorCodes(campaignID, limit int) (map[string]int, error)
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, campaign_id, contact_id, status, last_error_code, last_error_message,
    last_error_class, provider_message_id, idempotency_key, attempt_count, claimed_at, claimed_by,
    sent_at, delivered_at, read_at, created_at, updated_at`

func scanRecipient(row interface{ Scan(...interface{}) error }) (*model.Recipient, error) {
	var r model.Recipient
	err := row.Scan(
		&r.ID, &r.CampaignID, &r.ContactID, &r.Status, &r.LastErrorCode, &r.LastErrorMessage,
		&r.LastErrorClass, &r.ProviderMessageID, &r.IdempotencyKey, &r.AttemptCount, &r.ClaimedAt,
		&r.ClaimedBy, &r.SentAt, &r.DeliveredAt, &r.ReadAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ClaimQueued atomically claims up to n queued recipients for one dispatch
// attempt. FOR UPDATE SKIP LOCKED keeps two concurrent attempts from claiming
// the same rows; the lease lets rows claimed by a dead process come back. The
// token identifies the claiming attempt, so an attempt that outlives its own
// lease can detect a takeover before sending (RefreshClaim).
// Rows come back in enqueue (id) order.
func (r *RecipientRepository) ClaimQueued(campaignID, n int, lease time.Duration, token string) ([]*model.Recipient, error) {
	query := fmt.Sprintf(`
        UPDATE recipients SET claimed_at = NOW(), claimed_by = $4, updated_at = NOW()
        WHERE id IN (
            SELECT id FROM recipients
            WHERE campaign_id = $1
              AND status = 'queued'
              AND (claimed_at IS NULL OR claimed_at < NOW() - $3 * INTERVAL '1 second')
            ORDER BY id
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        )
        RETURNING %s
    `, recipientColumns)

	rows, err := r.DB.Query(query, campaignID, n, int(lease.Seconds()), token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claimed := []*model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, rec)
	}
	// RETURNING does not guarantee order; the dispatcher needs FIFO, so sort
	// by id here instead of relying on the planner.
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].ID < claimed[j].ID })
	return claimed, rows.Err()
}

// RefreshClaim renews one recipient's claim for the attempt holding the
// token. A false return means the claim lapsed and another attempt took the
// row over; the caller must not send to it.
func (r *RecipientRepository) RefreshClaim(id int, token string) (bool, error) {
	query := `
        UPDATE recipients SET claimed_at = NOW(), updated_at = NOW()
        WHERE id = $1 AND status = 'queued' AND claimed_by = $2
    `
	res, err := r.DB.Exec(query, id, token)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ReleaseClaims puts still-queued claimed rows back so a systemic abort leaves
// them available to the next batch instead of burning them as failures. Only
// rows still held by the releasing attempt's token are touched.
func (r *RecipientRepository) ReleaseClaims(campaignID int, ids []int, token string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
        UPDATE recipients SET claimed_at = NULL, claimed_by = '', updated_at = NOW()
        WHERE campaign_id = $1 AND status = 'queued' AND claimed_by = $3 AND id = ANY($2)
    `
	_, err := r.DB.Exec(query, campaignID, pq.Array(ids), token)
	return err
}

// EnsureIdempotencyKey assigns the key on first use and returns whichever key
// the recipient already carries, so a retried send after an ambiguous outcome
// (timeout) presents the provider with the same key and dedupes.
func (r *RecipientRepository) EnsureIdempotencyKey(id int, key string) (string, error) {
	var current string
	err := r.DB.QueryRow(`
        UPDATE recipients
        SET idempotency_key = COALESCE(NULLIF(idempotency_key, ''), $2), updated_at = NOW()
        WHERE id = $1
        RETURNING idempotency_key
    `, id, key).Scan(&current)
	return current, err
}

func (r *RecipientRepository) MarkSent(id int, providerMessageID string) error {
	query := `
        UPDATE recipients
        SET status = 'sent', provider_message_id = $2, sent_at = NOW(), claimed_at = NULL,
            claimed_by = '', last_error_code = '', last_error_message = '', last_error_class = '',
            updated_at = NOW()
        WHERE id = $1 AND status = 'queued'
    `
	_, err := r.DB.Exec(query, id, providerMessageID)
	return err
}

func (r *RecipientRepository) MarkFailed(id int, code, message string, class model.ErrorClass) error {
	query := `
        UPDATE recipients
        SET status = 'failed', last_error_code = $2, last_error_message = $3, last_error_class = $4,
            attempt_count = attempt_count + 1, claimed_at = NULL, claimed_by = '', updated_at = NOW()
        WHERE id = $1 AND status IN ('queued', 'sent')
    `
	_, err := r.DB.Exec(query, id, code, message, string(class))
	return err
}

// MarkDelivered advances sent -> delivered. Any other current status makes it
// a no-op (false), which is what keeps late or replayed webhooks harmless.
func (r *RecipientRepository) MarkDelivered(id int, at time.Time) (bool, error) {
	query := `
        UPDATE recipients SET status = 'delivered', delivered_at = $2, updated_at = NOW()
        WHERE id = $1 AND status = 'sent'
    `
	res, err := r.DB.Exec(query, id, at)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *RecipientRepository) MarkRead(id int, at time.Time) (bool, error) {
	query := `
        UPDATE recipients
        SET status = 'read', read_at = $2, delivered_at = COALESCE(delivered_at, $2), updated_at = NOW()
        WHERE id = $1 AND status IN ('sent', 'delivered')
    `
	res, err := r.DB.Exec(query, id, at)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RequeueTransient resets transient failures below the attempt bound back to
// queued so the next batch picks them up automatically.
func (r *RecipientRepository) RequeueTransient(campaignID, maxAttempts int) (int, error) {
	query := `
        UPDATE recipients SET status = 'queued', claimed_at = NULL, claimed_by = '', updated_at = NOW()
        WHERE campaign_id = $1 AND status = 'failed'
          AND last_error_class = 'transient' AND attempt_count < $2
    `
	res, err := r.DB.Exec(query, campaignID, maxAttempts)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RetryFailed is the explicit operator reset: every failed recipient goes back
// to queued with a clean slate before any resend is attempted. The idempotency
// key is cleared too, because the operator retry starts a new send cycle that
// must not be deduplicated against the old one.
func (r *RecipientRepository) RetryFailed(campaignID int) (int, error) {
	query := `
        UPDATE recipients
        SET status = 'queued', last_error_code = '', last_error_message = '', last_error_class = '',
            attempt_count = 0, claimed_at = NULL, claimed_by = '', provider_message_id = NULL,
            idempotency_key = '', updated_at = NOW()
        WHERE campaign_id = $1 AND status = 'failed'
    `
	res, err := r.DB.Exec(query, campaignID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SkipQueued marks everything still queued as skipped when a campaign is
// cancelled.
func (r *RecipientRepository) SkipQueued(campaignID int) (int, error) {
	query := `
        UPDATE recipients SET status = 'skipped', claimed_at = NULL, claimed_by = '', updated_at = NOW()
        WHERE campaign_id = $1 AND status = 'queued'
    `
	res, err := r.DB.Exec(query, campaignID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *RecipientRepository) FindByProviderMessageID(providerMessageID string) (*model.Recipient, error) {
	query := fmt.Sprintf(`SELECT %s FROM recipients WHERE provider_message_id = $1`, recipientColumns)
	rec, err := scanRecipient(r.DB.QueryRow(query, providerMessageID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecipientRepository) List(campaignID int, status model.RecipientStatus, offset, limit int) ([]*model.Recipient, int, error) {
	query := fmt.Sprintf(`SELECT %s FROM recipients WHERE campaign_id = $1`, recipientColumns)
	countQuery := `SELECT COUNT(*) FROM recipients WHERE campaign_id = $1`
	args := []interface{}{campaignID}

	if status != "" {
		query += ` AND status = $2`
		countQuery += ` AND status = $2`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recipients := []*model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, 0, err
		}
		recipients = append(recipients, rec)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return recipients, total, nil
}

func (r *RecipientRepository) CountByStatus(campaignID int) (map[model.RecipientStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM recipients WHERE campaign_id = $1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.RecipientStatus]int{
		model.RecipientQueued:    0,
		model.RecipientSent:      0,
		model.RecipientDelivered: 0,
		model.RecipientRead:      0,
		model.RecipientFailed:    0,
		model.RecipientSkipped:   0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[model.RecipientStatus(status)] = count
	}
	return counts, rows.Err()
}

func (r *RecipientRepository) CountQueued(campaignID int) (int, error) {
	var n int
	err := r.DB.QueryRow(
		`SELECT COUNT(*) FROM recipients WHERE campaign_id = $1 AND status = 'queued'`,
		campaignID,
	).Scan(&n)
	return n, err
}

// CountRetryable counts transient failures still below the automatic retry
// bound; they keep the campaign from settling into a terminal state.
func (r *RecipientRepository) CountRetryable(campaignID, maxAttempts int) (int, error) {
	var n int
	err := r.DB.QueryRow(`
        SELECT COUNT(*) FROM recipients
        WHERE campaign_id = $1 AND status = 'failed'
          AND last_error_class = 'transient' AND attempt_count < $2
    `, campaignID, maxAttempts).Scan(&n)
	return n, err
}

func (r *RecipientRepository) TopErrorCodes(campaignID, limit int) (map[string]int, error) {
	query := `
        SELECT last_error_code, COUNT(*)
        FROM recipients
        WHERE campaign_id = $1 AND status = 'failed' AND last_error_code <> ''
        GROUP BY last_error_code
        ORDER BY COUNT(*) DESC
        LIMIT $2
    `
	rows, err := r.DB.Query(query, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := map[string]int{}
	for rows.Next() {
		var code string
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			return nil, err
		}
		codes[code] = count
	}
	return codes, rows.Err()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
