package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/b2stos/nexuszap-sub000/internal/model"
	"github.com/b2stos/nexuszap-sub000/internal/provider"
	"github.com/b2stos/nexuszap-sub000/internal/queue"
	"github.com/b2stos/nexuszap-sub000/internal/quota"
	"github.com/b2stos/nexuszap-sub000/internal/repository"
)

// Dispatcher runs one bounded batch per invocation. It is re-entrant: the
// atomic claim in the recipient repository is the only concurrency control,
// so a timer tick, an operator force and a queued re-invocation can all call
// RunBatch without double-sending. Each invocation claims under its own
// token and re-verifies ownership right before every send, so a claim taken
// over by another invocation after a lease lapse is never sent twice.
type Dispatcher struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	ChannelRepo   repository.ChannelRepositoryInterface
	ContactRepo   repository.ContactRepositoryInterface
	TemplateRepo  repository.TemplateRepositoryInterface
	Sender        provider.Sender
	Quota         *quota.Tracker
	Queue         queue.Queue
	Log           *zap.Logger

	BatchSize      int
	MaxAutoRetries int
	ClaimLease     time.Duration

	// NewLimiter builds the inter-message pacer for a speed profile. Tests
	// swap in an unlimited limiter so batches run instantly.
	NewLimiter func(model.Speed) *rate.Limiter
}

func defaultLimiter(s model.Speed) *rate.Limiter {
	return rate.NewLimiter(rate.Every(s.Delay()), 1)
}

// claimLeaseFor floors the configured lease at the time the whole batch
// needs at the chosen pace, with headroom for the sends themselves. Without
// the floor a slow batch outlives its own lease and a concurrent invocation
// can reclaim recipients that are still being worked.
func (d *Dispatcher) claimLeaseFor(batchSize int, speed model.Speed) time.Duration {
	lease := d.ClaimLease
	if floor := time.Duration(batchSize)*speed.Delay() + 30*time.Second; floor > lease {
		lease = floor
	}
	return lease
}

// storeError marks a bookkeeping failure (contact lookup, idempotency key
// assignment, status update) as distinct from a provider send error. It must
// never reach the provider classifier: a failed MarkSent after an accepted
// send classified as transient would requeue and re-send the recipient.
type storeError struct {
	err error
}

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

// BatchResult summarizes one dispatch attempt.
type BatchResult struct {
	CampaignID int    `json:"campaign_id"`
	Claimed    int    `json:"claimed"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Released   int    `json:"released"`
	Lost       int    `json:"lost,omitempty"` // claims taken over by a concurrent invocation
	Paused     bool   `json:"paused"`
	Finished   bool   `json:"finished"`
	Skipped    string `json:"skipped,omitempty"` // reason the batch did not run
}

// RunBatch processes one batch for a running campaign. speedOverride is
// optional; empty means the campaign's own profile.
func (d *Dispatcher) RunBatch(ctx context.Context, campaignID int, speedOverride model.Speed) (*BatchResult, error) {
	result := &BatchResult{CampaignID: campaignID}

	campaign, err := d.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignRunning {
		// pause/cancel take effect here, at the batch boundary
		result.Skipped = "campaign not running"
		return result, nil
	}

	channel, err := d.ChannelRepo.GetByID(campaign.ChannelID)
	if err != nil {
		return nil, err
	}
	if channel == nil || !channel.Connected {
		result.Skipped = "channel disconnected"
		d.Log.Warn("dispatch aborted, channel disconnected", zap.Int("campaign", campaignID))
		return result, nil
	}
	if channel.Blocked {
		// the provider already refused this channel; sending would fail
		// every recipient while still consuming quota
		result.Paused = true
		d.Log.Warn("dispatch aborted, channel blocked by provider",
			zap.Int("campaign", campaignID), zap.String("code", channel.BlockedCode))
		return result, d.CampaignRepo.UpdateStatus(campaignID, model.CampaignPaused)
	}

	tmpl, err := d.TemplateRepo.GetByID(campaign.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil || tmpl.Status != model.TemplateApproved {
		result.Paused = true
		d.Log.Warn("dispatch aborted, template no longer approved", zap.Int("campaign", campaignID))
		return result, d.CampaignRepo.UpdateStatus(campaignID, model.CampaignPaused)
	}

	// Transient failures below the attempt bound come back automatically.
	if _, err := d.RecipientRepo.RequeueTransient(campaignID, d.MaxAutoRetries); err != nil {
		return nil, err
	}

	queued, err := d.RecipientRepo.CountQueued(campaignID)
	if err != nil {
		return nil, err
	}
	if queued == 0 {
		return result, d.finalize(result, campaignID)
	}

	batchSize := d.BatchSize
	if queued < batchSize {
		batchSize = queued
	}
	remaining, limited, err := d.Quota.Remaining(ctx, channel.ID, channel.DailyLimit)
	if err != nil {
		return nil, err
	}
	if limited {
		if remaining == 0 {
			// quota exhausted; the next scheduled tick retries once the
			// trailing window frees allowance
			result.Skipped = "quota exhausted"
			return result, nil
		}
		if remaining < batchSize {
			batchSize = remaining
		}
	}

	speed := campaign.Speed
	if speedOverride != "" {
		speed = speedOverride
	}
	newLimiter := d.NewLimiter
	if newLimiter == nil {
		newLimiter = defaultLimiter
	}
	limiter := newLimiter(speed)

	token := uuid.NewString()
	claimed, err := d.RecipientRepo.ClaimQueued(campaignID, batchSize, d.claimLeaseFor(batchSize, speed), token)
	if err != nil {
		return nil, err
	}
	result.Claimed = len(claimed)

	for i, rec := range claimed {
		if err := limiter.Wait(ctx); err != nil {
			d.releaseRest(result, campaignID, claimed[i:], token)
			return result, err
		}

		// Re-verify ownership right before the send. A lapsed lease means
		// another invocation holds this recipient now; sending from the
		// stale slice would deliver the message twice.
		owned, err := d.RecipientRepo.RefreshClaim(rec.ID, token)
		if err != nil {
			d.releaseRest(result, campaignID, claimed[i:], token)
			return result, err
		}
		if !owned {
			result.Lost++
			d.Log.Warn("claim lost to concurrent dispatch, skipping recipient",
				zap.Int("campaign", campaignID), zap.Int("recipient", rec.ID))
			continue
		}

		sendErr := d.sendOne(ctx, channel, tmpl, rec)
		if sendErr == nil {
			result.Sent++
			continue
		}

		var se *storeError
		if errors.As(sendErr, &se) {
			// our own storage failed mid-batch; the provider state is
			// unknown at worst, so stop and let the retry re-run with the
			// same idempotency key rather than condemn the recipient
			d.releaseRest(result, campaignID, claimed[i:], token)
			return result, sendErr
		}

		class := provider.Classify(sendErr)
		if class == model.ErrorSystemic {
			// stop the whole batch: every further send would fail the same
			// way and still burn quota. Unsent claims go back to queued.
			d.releaseRest(result, campaignID, claimed[i:], token)
			result.Paused = true
			d.Log.Error("systemic send error, pausing campaign",
				zap.Int("campaign", campaignID),
				zap.String("code", provider.ErrorCode(sendErr)),
				zap.Error(sendErr))
			if err := d.CampaignRepo.UpdateStatus(campaignID, model.CampaignPaused); err != nil {
				return result, err
			}
			return result, nil
		}

		result.Failed++
		if err := d.RecipientRepo.MarkFailed(rec.ID, provider.ErrorCode(sendErr), sendErr.Error(), class); err != nil {
			return result, err
		}
		if err := d.CampaignRepo.TouchProgress(campaignID); err != nil {
			return result, err
		}
	}

	return result, d.finalize(result, campaignID)
}

func (d *Dispatcher) sendOne(ctx context.Context, channel *model.Channel, tmpl *model.Template, rec *model.Recipient) error {
	contact, err := d.ContactRepo.GetByID(rec.ContactID)
	if err != nil {
		return &storeError{err}
	}
	if contact == nil {
		return &provider.APIError{HTTPStatus: 400, Code: "131021", Message: "recipient contact missing"}
	}

	// The key is assigned once per send cycle and survives transient
	// requeues, so a retry after an ambiguous timeout presents the same key
	// and the provider can dedupe it.
	key, err := d.RecipientRepo.EnsureIdempotencyKey(rec.ID, uuid.NewString())
	if err != nil {
		return &storeError{err}
	}

	res, err := d.Sender.Send(ctx, provider.SendRequest{
		To: contact.Phone,
		Template: &provider.TemplateMessage{
			Name:      tmpl.Name,
			Language:  tmpl.Language,
			Variables: []string{contact.FirstName, contact.LastName},
		},
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}

	if err := d.RecipientRepo.MarkSent(rec.ID, res.ProviderMessageID); err != nil {
		return &storeError{err}
	}
	if err := d.Quota.Record(ctx, channel.ID); err != nil {
		d.Log.Warn("quota record failed", zap.Int("channel", channel.ID), zap.Error(err))
	}
	// The send is already accepted and recorded; a stale counter must not
	// fail the recipient.
	if err := d.CampaignRepo.TouchProgress(rec.CampaignID); err != nil {
		d.Log.Warn("progress touch failed", zap.Int("campaign", rec.CampaignID), zap.Error(err))
	}
	return nil
}

func (d *Dispatcher) releaseRest(result *BatchResult, campaignID int, rest []*model.Recipient, token string) {
	ids := make([]int, 0, len(rest))
	for _, r := range rest {
		ids = append(ids, r.ID)
	}
	if err := d.RecipientRepo.ReleaseClaims(campaignID, ids, token); err != nil {
		d.Log.Error("release claims failed", zap.Int("campaign", campaignID), zap.Error(err))
		return
	}
	result.Released = len(ids)
}

// finalize refreshes counters and settles the campaign: done or failed when
// nothing is queued, otherwise schedule the next batch.
func (d *Dispatcher) finalize(result *BatchResult, campaignID int) error {
	campaign, err := d.CampaignRepo.RefreshCounters(campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignRunning {
		return nil
	}

	queued, err := d.RecipientRepo.CountQueued(campaignID)
	if err != nil {
		return err
	}
	retryable, err := d.RecipientRepo.CountRetryable(campaignID, d.MaxAutoRetries)
	if err != nil {
		return err
	}
	if queued > 0 || retryable > 0 {
		if err := d.Queue.Publish(queue.TopicDispatch, campaignID); err != nil {
			// the scheduled tick will pick the campaign up anyway
			d.Log.Warn("failed to schedule next batch", zap.Int("campaign", campaignID), zap.Error(err))
		}
		return nil
	}

	result.Finished = true
	if campaign.TotalRecipients > 0 && campaign.FailedCount == campaign.TotalRecipients {
		return d.CampaignRepo.UpdateStatus(campaignID, model.CampaignFailed)
	}
	return d.CampaignRepo.UpdateStatus(campaignID, model.CampaignDone)
}
