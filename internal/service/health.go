// internal/service/health.go
package service

import (
	"time"

	"github.com/b2stos/nexuszap-sub000/internal/model"
	"github.com/b2stos/nexuszap-sub000/internal/repository"
)

// HealthReporter aggregates delivery and webhook signals for operator
// alerting. It is a read-only observer: nothing here blocks or alters
// dispatch.
type HealthReporter struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	WebhookRepo   repository.WebhookEventRepositoryInterface

	// WebhookHealthWindow is how recently a webhook must have arrived for
	// the feed to count as healthy once messages have gone out.
	WebhookHealthWindow time.Duration

	Now func() time.Time
}

type HealthReport struct {
	CampaignID        int                           `json:"campaign_id"`
	Status            model.CampaignStatus          `json:"status"`
	Counts            map[model.RecipientStatus]int `json:"counts"`
	TopErrorCodes     map[string]int                `json:"top_error_codes"`
	OrphanWebhooks    int                           `json:"orphan_webhooks"`
	LastWebhookAt     *time.Time                    `json:"last_webhook_at,omitempty"`
	SecondsSinceEvent *int                          `json:"seconds_since_last_webhook,omitempty"`
	WebhookHealthy    bool                          `json:"webhook_healthy"`
}

// Report builds the diagnostics view for one campaign. The webhook feed is
// considered healthy when nothing has been sent yet (no confirmations are
// expected) or when an event arrived within the window.
func (h *HealthReporter) Report(campaignID int) (*HealthReport, error) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	campaign, err := h.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	counts, err := h.RecipientRepo.CountByStatus(campaignID)
	if err != nil {
		return nil, err
	}
	topCodes, err := h.RecipientRepo.TopErrorCodes(campaignID, 5)
	if err != nil {
		return nil, err
	}
	orphans, err := h.WebhookRepo.OrphanCount(campaign.ChannelID)
	if err != nil {
		return nil, err
	}
	lastWebhook, err := h.WebhookRepo.LastReceivedAt(campaign.ChannelID)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		CampaignID:     campaignID,
		Status:         campaign.Status,
		Counts:         counts,
		TopErrorCodes:  topCodes,
		OrphanWebhooks: orphans,
		LastWebhookAt:  lastWebhook,
	}

	dispatched := counts[model.RecipientSent] + counts[model.RecipientDelivered] +
		counts[model.RecipientRead] + counts[model.RecipientFailed]
	switch {
	case dispatched == 0:
		report.WebhookHealthy = true
	case lastWebhook != nil:
		since := now().Sub(*lastWebhook)
		sec := int(since.Seconds())
		report.SecondsSinceEvent = &sec
		report.WebhookHealthy = since <= h.WebhookHealthWindow
	default:
		report.WebhookHealthy = false
	}
	return report, nil
}
