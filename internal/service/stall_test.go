package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"

	"github.com/b2stos/nexuszap-sub000/internal/service"
)

func newStallDetector(f *fixture, now time.Time) *service.StallDetector {
	return &service.StallDetector{
		CampaignRepo:  f.campaigns,
		RecipientRepo: f.recipients,
		StallAfter:    30 * time.Second,
		Log:           zap.NewNop(),
		Now:           func() time.Time { return now },
	}
}

func TestStallDetectorFlagsStuckCampaign(t *testing.T) {
	f := newFixture()
	campaign := f.seedCampaign(5, nil)
	f.setRunning(campaign.ID)

	// running sets last progress; nothing moves for a minute after that
	got, err := f.campaigns.GetByID(campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastProgressAt)

	d := newStallDetector(f, got.LastProgressAt.Add(time.Minute))
	reports, err := d.Detect()
	require.NoError(t, err)

	require.Len(t, reports, 1)
	assert.Equal(t, campaign.ID, reports[0].CampaignID)
	assert.Equal(t, 5, reports[0].Queued)
	assert.Equal(t, 60, reports[0].StalledForSec)
}

func TestStallDetectorIgnoresRecentProgress(t *testing.T) {
	f := newFixture()
	campaign := f.seedCampaign(5, nil)
	f.setRunning(campaign.ID)

	got, err := f.campaigns.GetByID(campaign.ID)
	require.NoError(t, err)

	d := newStallDetector(f, got.LastProgressAt.Add(10*time.Second))
	reports, err := d.Detect()
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestStallDetectorIgnoresDrainedCampaign(t *testing.T) {
	f := newFixture()
	campaign := f.seedCampaign(2, nil)
	f.setRunning(campaign.ID)

	_, err := f.dispatcher.RunBatch(context.Background(), campaign.ID, "")
	require.NoError(t, err)

	d := newStallDetector(f, time.Now().Add(time.Hour))
	reports, err := d.Detect()
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestStallDetectorIgnoresPausedCampaign(t *testing.T) {
	f := newFixture()
	campaign := f.seedCampaign(5, nil)
	f.setRunning(campaign.ID)
	_, err := f.campaignSv.Pause(campaign.ID)
	require.NoError(t, err)

	d := newStallDetector(f, time.Now().Add(time.Hour))
	reports, err := d.Detect()
	require.NoError(t, err)
	assert.Empty(t, reports)
}
