package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/b2stos/nexuszap-sub000/internal/errors"
	"github.com/b2stos/nexuszap-sub000/internal/model"
)

type CampaignRepositoryInterface interface {
	CreateWithRecipients(c *model.Campaign, contactIDs []int) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)
	ListRunning() ([]*model.Campaign, error)
	UpdateStatus(campaignID int, to model.CampaignStatus) error
	RefreshCounters(campaignID int) (*model.Campaign, error)
	TouchProgress(campaignID int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, channel_id, template_id, status, speed, total_recipients,
    sent_count, delivered_count, read_count, failed_count, last_progress_at, started_at,
    finished_at, created_at, updated_at`

// qualify prefixes every column in a comma-separated list, for queries where
// the table appears alongside a subquery alias.
func qualify(columns, table string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = table + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanCampaign(row interface{ Scan(...interface{}) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.ChannelID, &c.TemplateID, &c.Status, &c.Speed, &c.TotalRecipients,
		&c.SentCount, &c.DeliveredCount, &c.ReadCount, &c.FailedCount, &c.LastProgressAt,
		&c.StartedAt, &c.FinishedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateWithRecipients inserts the campaign and its recipient rows in one
// transaction. Duplicate contacts within the campaign are dropped by the
// unique (campaign_id, contact_id) constraint, and total_recipients reflects
// what actually landed.
func (r *CampaignRepository) CreateWithRecipients(c *model.Campaign, contactIDs []int) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.Speed == "" {
		c.Speed = model.SpeedNormal
	}
	c.CreatedAt = time.Now()

	err = tx.QueryRow(`
        INSERT INTO campaigns (name, channel_id, template_id, status, speed, total_recipients, created_at)
        VALUES ($1, $2, $3, $4, $5, 0, $6)
        RETURNING id
    `, c.Name, c.ChannelID, c.TemplateID, string(c.Status), string(c.Speed), c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return err
	}

	res, err := tx.Exec(`
        INSERT INTO recipients (campaign_id, contact_id, status, created_at, updated_at)
        SELECT $1, unnest($2::int[]), 'queued', NOW(), NOW()
        ON CONFLICT (campaign_id, contact_id) DO NOTHING
    `, c.ID, pq.Array(contactIDs))
	if err != nil {
		return err
	}
	inserted, _ := res.RowsAffected()
	c.TotalRecipients = int(inserted)

	if _, err := tx.Exec(`UPDATE campaigns SET total_recipients = $1 WHERE id = $2`, c.TotalRecipients, c.ID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM campaigns WHERE id = $1`, campaignColumns)
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := fmt.Sprintf(`SELECT %s FROM campaigns WHERE 1=1`, campaignColumns)
	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	args := []interface{}{}

	if status != "" {
		query += ` AND status = $1`
		countQuery += ` AND status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) ListRunning() ([]*model.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM campaigns WHERE status = 'running' ORDER BY id`, campaignColumns)
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// UpdateStatus moves a campaign through the state machine. The transition
// table is checked inside the row lock, so a stale caller cannot push a
// terminal campaign anywhere.
func (r *CampaignRepository) UpdateStatus(campaignID int, to model.CampaignStatus) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current model.CampaignStatus
	err = tx.QueryRow(`SELECT status FROM campaigns WHERE id = $1 FOR UPDATE`, campaignID).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.NewCampaignNotFound(campaignID)
		}
		return err
	}

	if !model.CampaignTransitionAllowed(current, to) {
		return appErrors.NewInvalidTransition("campaign", string(current), string(to))
	}
	if current == to {
		return tx.Commit() // idempotent no-op
	}

	query := `UPDATE campaigns SET status = $1, updated_at = NOW()`
	switch {
	case to == model.CampaignRunning:
		query += `, started_at = COALESCE(started_at, NOW()), last_progress_at = NOW()`
	case to.Terminal():
		query += `, finished_at = NOW()`
	}
	query += ` WHERE id = $2`

	if _, err := tx.Exec(query, string(to), campaignID); err != nil {
		return err
	}
	return tx.Commit()
}

// RefreshCounters recomputes the campaign's per-status counters from the
// recipient rows and returns the fresh campaign.
func (r *CampaignRepository) RefreshCounters(campaignID int) (*model.Campaign, error) {
	query := fmt.Sprintf(`
        UPDATE campaigns SET
            sent_count      = agg.sent,
            delivered_count = agg.delivered,
            read_count      = agg.read,
            failed_count    = agg.failed,
            updated_at      = NOW()
        FROM (
            SELECT
                COUNT(*) FILTER (WHERE status = 'sent')      AS sent,
                COUNT(*) FILTER (WHERE status = 'delivered') AS delivered,
                COUNT(*) FILTER (WHERE status = 'read')      AS read,
                COUNT(*) FILTER (WHERE status = 'failed')    AS failed
            FROM recipients WHERE campaign_id = $1
        ) agg
        WHERE campaigns.id = $1
        RETURNING %s
    `, qualify(campaignColumns, "campaigns"))

	return scanCampaign(r.DB.QueryRow(query, campaignID))
}

// TouchProgress records that the processed count moved, for the stall
// detector.
func (r *CampaignRepository) TouchProgress(campaignID int) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET last_progress_at = NOW() WHERE id = $1`, campaignID)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
