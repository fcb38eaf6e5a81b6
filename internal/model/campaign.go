package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignDone      CampaignStatus = "done"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Speed selects the inter-message delay used while processing a batch.
type Speed string

const (
	SpeedSlow   Speed = "slow"
	SpeedNormal Speed = "normal"
	SpeedFast   Speed = "fast"
)

// Delay returns the pause between consecutive sends for this profile.
func (s Speed) Delay() time.Duration {
	switch s {
	case SpeedSlow:
		return 3 * time.Second
	case SpeedFast:
		return 800 * time.Millisecond
	default:
		return 1500 * time.Millisecond
	}
}

func (s Speed) Valid() bool {
	switch s {
	case SpeedSlow, SpeedNormal, SpeedFast:
		return true
	}
	return false
}

type Campaign struct {
	ID              int            `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	ChannelID       int            `db:"channel_id" json:"channel_id"`
	TemplateID      int            `db:"template_id" json:"template_id"`
	Status          CampaignStatus `db:"status" json:"status"`
	Speed           Speed          `db:"speed" json:"speed"`
	TotalRecipients int            `db:"total_recipients" json:"total_recipients"`
	SentCount       int            `db:"sent_count" json:"sent_count"`
	DeliveredCount  int            `db:"delivered_count" json:"delivered_count"`
	ReadCount       int            `db:"read_count" json:"read_count"`
	FailedCount     int            `db:"failed_count" json:"failed_count"`
	LastProgressAt  *time.Time     `db:"last_progress_at" json:"last_progress_at,omitempty"`
	StartedAt       *time.Time     `db:"started_at" json:"started_at,omitempty"`
	FinishedAt      *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// Terminal reports whether no further status change is possible.
func (s CampaignStatus) Terminal() bool {
	switch s {
	case CampaignDone, CampaignFailed, CampaignCancelled:
		return true
	}
	return false
}
