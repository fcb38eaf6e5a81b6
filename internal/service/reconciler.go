// internal/service/reconciler.go
package service

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/b2stos/nexuszap-sub000/internal/model"
	"github.com/b2stos/nexuszap-sub000/internal/provider"
	"github.com/b2stos/nexuszap-sub000/internal/repository"
)

// Reconciler ingests provider callbacks on a path fully independent of the
// send loop. It only advances recipient state forward; webhook problems are
// recorded on the event row and never touch campaign status.
type Reconciler struct {
	WebhookRepo   repository.WebhookEventRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	CampaignRepo  repository.CampaignRepositoryInterface
	ChannelRepo   repository.ChannelRepositoryInterface
	ContactRepo   repository.ContactRepositoryInterface
	Log           *zap.Logger
}

// webhookPayload is the broker's callback shape. Status events carry the
// provider message id assigned at send time; inbound events carry the
// contact's phone number.
type webhookPayload struct {
	Type      string `json:"type"` // "status" or "inbound"
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status,omitempty"` // sent, delivered, read, failed
	From      string `json:"from,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Ingest stores the raw event and reports whether it was new. Duplicate
// deliveries of the same (message_id, type, status) are absorbed here, before
// any counter can move twice.
func (r *Reconciler) Ingest(channelID int, payload []byte) (*model.WebhookEvent, bool, error) {
	var parsed webhookPayload
	ev := &model.WebhookEvent{
		ChannelID: channelID,
		EventType: model.WebhookUnknown,
		Payload:   payload,
	}
	if err := json.Unmarshal(payload, &parsed); err == nil {
		switch parsed.Type {
		case "status":
			ev.EventType = model.WebhookStatus
			ev.ReportedStatus = parsed.Status
			if parsed.MessageID != "" {
				ev.ProviderMessageID = &parsed.MessageID
			}
		case "inbound":
			ev.EventType = model.WebhookInbound
		}
	}

	inserted, err := r.WebhookRepo.Insert(ev)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		r.Log.Debug("duplicate webhook dropped",
			zap.Int("channel", channelID), zap.String("status", ev.ReportedStatus))
	}
	return ev, inserted, nil
}

// ProcessEvent applies one stored event. Classification problems are recorded
// as the event's processing_error and swallowed; only storage failures
// propagate (so the queue retries them).
func (r *Reconciler) ProcessEvent(eventID int) error {
	ev, err := r.WebhookRepo.GetByID(eventID)
	if err != nil {
		return err
	}
	if ev == nil || ev.Processed {
		return nil
	}

	var parsed webhookPayload
	if err := json.Unmarshal(ev.Payload, &parsed); err != nil {
		return r.WebhookRepo.MarkError(eventID, fmt.Sprintf("unparseable payload: %v", err))
	}

	switch ev.EventType {
	case model.WebhookStatus:
		return r.processStatus(ev, &parsed)
	case model.WebhookInbound:
		return r.processInbound(ev, &parsed)
	default:
		return r.WebhookRepo.MarkError(eventID, "unknown event type")
	}
}

func (r *Reconciler) processStatus(ev *model.WebhookEvent, parsed *webhookPayload) error {
	if ev.ProviderMessageID == nil {
		return r.WebhookRepo.MarkError(ev.ID, "status event without message id")
	}

	rec, err := r.RecipientRepo.FindByProviderMessageID(*ev.ProviderMessageID)
	if err != nil {
		return err
	}
	if rec == nil {
		// not an error: the id may belong to another tenant's scope or a
		// manually sent message. Recorded for diagnostics.
		r.Log.Info("orphan webhook",
			zap.String("message_id", *ev.ProviderMessageID),
			zap.String("status", parsed.Status))
		return r.WebhookRepo.MarkProcessed(ev.ID, true)
	}

	at := eventTime(parsed.Timestamp)

	switch parsed.Status {
	case "delivered":
		advanced, err := r.RecipientRepo.MarkDelivered(rec.ID, at)
		if err != nil {
			return err
		}
		if !advanced {
			r.Log.Debug("stale status webhook ignored",
				zap.Int("recipient", rec.ID), zap.String("status", "delivered"))
		}
	case "read":
		if _, err := r.RecipientRepo.MarkRead(rec.ID, at); err != nil {
			return err
		}
	case "failed":
		code, message := "unknown", "provider reported failure"
		if parsed.Error != nil {
			code, message = parsed.Error.Code, parsed.Error.Message
		}
		class := provider.ClassifyCode(code)
		if err := r.RecipientRepo.MarkFailed(rec.ID, code, message, class); err != nil {
			return err
		}
		if class == model.ErrorSystemic {
			// this condition poisons every campaign on the channel, not
			// just the one this recipient belongs to
			r.Log.Error("provider blocked channel",
				zap.Int("channel", ev.ChannelID), zap.String("code", code))
			if err := r.ChannelRepo.SetBlocked(ev.ChannelID, code, message, time.Now()); err != nil {
				return err
			}
		}
	case "sent":
		// already recorded at dispatch time; a late "sent" after delivered
		// must not regress anything
	default:
		return r.WebhookRepo.MarkError(ev.ID, fmt.Sprintf("unknown reported status %q", parsed.Status))
	}

	if _, err := r.CampaignRepo.RefreshCounters(rec.CampaignID); err != nil {
		return err
	}
	return r.WebhookRepo.MarkProcessed(ev.ID, false)
}

func (r *Reconciler) processInbound(ev *model.WebhookEvent, parsed *webhookPayload) error {
	if parsed.From == "" {
		return r.WebhookRepo.MarkError(ev.ID, "inbound event without sender")
	}
	// an inbound message opens the contact's 24h conversation window
	if err := r.ContactRepo.UpdateLastInboundByPhone(parsed.From, eventTime(parsed.Timestamp)); err != nil {
		return err
	}
	return r.WebhookRepo.MarkProcessed(ev.ID, false)
}

func eventTime(ts string) time.Time {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return time.Now()
}
