// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	appErrors "github.com/b2stos/nexuszap-sub000/internal/errors"
	"github.com/b2stos/nexuszap-sub000/internal/model"
	"github.com/b2stos/nexuszap-sub000/internal/queue"
	"github.com/b2stos/nexuszap-sub000/internal/repository"
)

// CampaignService owns the campaign state machine. Execution is delegated to
// the Dispatcher; commands here only validate, transition and schedule.
type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	ChannelRepo   repository.ChannelRepositoryInterface
	Templates     *TemplateService
	Queue         queue.Queue
	Log           *zap.Logger
}

// CommandResult is returned by every operator command: outcome plus the
// refreshed summary counters.
type CommandResult struct {
	Campaign *model.Campaign                 `json:"campaign"`
	Counts   map[model.RecipientStatus]int   `json:"counts"`
	Reset    int                             `json:"reset,omitempty"` // retry-failed only
}

func (s *CampaignService) result(campaignID int) (*CommandResult, error) {
	campaign, err := s.CampaignRepo.RefreshCounters(campaignID)
	if err != nil {
		return nil, err
	}
	counts, err := s.RecipientRepo.CountByStatus(campaignID)
	if err != nil {
		return nil, err
	}
	return &CommandResult{Campaign: campaign, Counts: counts}, nil
}

// CreateCampaign creates the campaign with its recipients attached in one
// atomic step; duplicate contacts are dropped.
func (s *CampaignService) CreateCampaign(name string, channelID, templateID int, speed model.Speed, contactIDs []int) (*model.Campaign, error) {
	if speed != "" && !speed.Valid() {
		return nil, fmt.Errorf("unknown speed profile: %s", speed)
	}
	c := &model.Campaign{
		Name:       name,
		ChannelID:  channelID,
		TemplateID: templateID,
		Speed:      speed,
		Status:     model.CampaignDraft,
	}
	if err := s.CampaignRepo.CreateWithRecipients(c, contactIDs); err != nil {
		return nil, err
	}
	return c, nil
}

// Start validates the pre-flight gates and moves the campaign to running.
// The template is re-verified against the broker so a stale local "approved"
// cannot start a campaign the broker would reject.
func (s *CampaignService) Start(ctx context.Context, campaignID int) (*CommandResult, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == model.CampaignRunning {
		return nil, appErrors.NewInvalidTransition("campaign", "running", "running")
	}
	if campaign.TotalRecipients == 0 {
		return nil, appErrors.ErrNoRecipients
	}

	if err := s.checkChannel(campaign.ChannelID); err != nil {
		return nil, err
	}
	if _, err := s.Templates.EnsureApproved(ctx, campaign.TemplateID); err != nil {
		return nil, err
	}

	if err := s.CampaignRepo.UpdateStatus(campaignID, model.CampaignRunning); err != nil {
		return nil, err
	}
	s.scheduleDispatch(campaignID)
	s.Log.Info("campaign started", zap.Int("campaign", campaignID))
	return s.result(campaignID)
}

// Pause takes effect at the next batch boundary; an in-flight batch finishes.
func (s *CampaignService) Pause(campaignID int) (*CommandResult, error) {
	if err := s.CampaignRepo.UpdateStatus(campaignID, model.CampaignPaused); err != nil {
		return nil, err
	}
	s.Log.Info("campaign paused", zap.Int("campaign", campaignID))
	return s.result(campaignID)
}

// Resume re-checks channel connectivity before dispatching again.
func (s *CampaignService) Resume(campaignID int) (*CommandResult, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignPaused {
		return nil, appErrors.NewInvalidTransition("campaign", string(campaign.Status), "running")
	}
	if err := s.checkChannel(campaign.ChannelID); err != nil {
		return nil, err
	}

	if err := s.CampaignRepo.UpdateStatus(campaignID, model.CampaignRunning); err != nil {
		return nil, err
	}
	s.scheduleDispatch(campaignID)
	s.Log.Info("campaign resumed", zap.Int("campaign", campaignID))
	return s.result(campaignID)
}

// Cancel works from any non-terminal state; whatever is still queued is
// marked skipped so no recipient is left without a terminal, explainable
// status.
func (s *CampaignService) Cancel(campaignID int) (*CommandResult, error) {
	if err := s.CampaignRepo.UpdateStatus(campaignID, model.CampaignCancelled); err != nil {
		return nil, err
	}
	skipped, err := s.RecipientRepo.SkipQueued(campaignID)
	if err != nil {
		return nil, err
	}
	s.Log.Info("campaign cancelled", zap.Int("campaign", campaignID), zap.Int("skipped", skipped))
	return s.result(campaignID)
}

// RetryFailed resets every failed recipient back to queued before any resend
// is attempted. It does not start dispatching by itself.
func (s *CampaignService) RetryFailed(campaignID int) (*CommandResult, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}
	reset, err := s.RecipientRepo.RetryFailed(campaignID)
	if err != nil {
		return nil, err
	}
	s.Log.Info("failed recipients requeued", zap.Int("campaign", campaignID), zap.Int("reset", reset))
	res, err := s.result(campaignID)
	if err != nil {
		return nil, err
	}
	res.Reset = reset
	return res, nil
}

func (s *CampaignService) checkChannel(channelID int) error {
	channel, err := s.ChannelRepo.GetByID(channelID)
	if err != nil {
		return err
	}
	if channel == nil || !channel.Connected {
		return appErrors.ErrChannelDisconnected
	}
	if channel.Blocked {
		return appErrors.ErrChannelBlocked
	}
	return nil
}

func (s *CampaignService) scheduleDispatch(campaignID int) {
	if err := s.Queue.Publish(queue.TopicDispatch, campaignID); err != nil {
		// the worker's scheduled tick will pick the campaign up
		s.Log.Warn("failed to enqueue dispatch", zap.Int("campaign", campaignID), zap.Error(err))
	}
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

// GetCampaignDetailsWithStats returns the campaign plus per-status recipient
// counts.
func (s *CampaignService) GetCampaignDetailsWithStats(campaignID int) (*CommandResult, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}
	return s.result(campaignID)
}

// ListRecipients pages through a campaign's recipients, optionally filtered
// by status.
func (s *CampaignService) ListRecipients(campaignID int, status model.RecipientStatus, page, pageSize int) ([]*model.Recipient, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	offset := (page - 1) * pageSize

	recipients, total, err := s.RecipientRepo.List(campaignID, status, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
	return recipients, pagination, nil
}
