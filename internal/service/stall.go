// internal/service/stall.go
package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/b2stos/nexuszap-sub000/internal/model"
	"github.com/b2stos/nexuszap-sub000/internal/repository"
)

// StallDetector watches running campaigns whose processed count has stopped
// moving while recipients remain queued. It only surfaces the condition; the
// recovery path is the operator's force-dispatch command. It never cancels a
// campaign on its own because the cause of a stall cannot be diagnosed from
// the state we can see.
type StallDetector struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	StallAfter    time.Duration
	Log           *zap.Logger

	Now func() time.Time // overridable in tests
}

type StallReport struct {
	CampaignID    int           `json:"campaign_id"`
	Name          string        `json:"name"`
	Queued        int           `json:"queued"`
	StalledFor    time.Duration `json:"-"`
	StalledForSec int           `json:"stalled_for_seconds"`
	LastProgress  *time.Time    `json:"last_progress_at"`
}

// Detect scans every running campaign and returns those that look stuck.
func (d *StallDetector) Detect() ([]StallReport, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	running, err := d.CampaignRepo.ListRunning()
	if err != nil {
		return nil, err
	}

	reports := []StallReport{}
	for _, c := range running {
		queued, err := d.RecipientRepo.CountQueued(c.ID)
		if err != nil {
			return nil, err
		}
		if queued == 0 {
			continue
		}

		last := c.LastProgressAt
		if last == nil {
			last = c.StartedAt
		}
		if last == nil {
			continue
		}
		stalledFor := now().Sub(*last)
		if stalledFor < d.StallAfter {
			continue
		}

		d.Log.Warn("campaign appears stalled",
			zap.Int("campaign", c.ID),
			zap.Int("queued", queued),
			zap.Duration("stalled_for", stalledFor))
		reports = append(reports, StallReport{
			CampaignID:    c.ID,
			Name:          c.Name,
			Queued:        queued,
			StalledFor:    stalledFor,
			StalledForSec: int(stalledFor.Seconds()),
			LastProgress:  c.LastProgressAt,
		})
	}
	return reports, nil
}

// Stalled reports whether one specific campaign is currently stuck.
func (d *StallDetector) Stalled(c *model.Campaign, queued int) bool {
	if c.Status != model.CampaignRunning || queued == 0 || c.LastProgressAt == nil {
		return false
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return now().Sub(*c.LastProgressAt) >= d.StallAfter
}
