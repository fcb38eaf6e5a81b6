// internal/service/message_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/b2stos/nexuszap-sub000/internal/errors"
	"github.com/b2stos/nexuszap-sub000/internal/provider"
	"github.com/b2stos/nexuszap-sub000/internal/repository"
	"github.com/b2stos/nexuszap-sub000/internal/window"
)

// MessageService covers single-contact sends outside the campaign path. The
// conversation-window gate lives here: free-form messages are provider policy
// only while the contact's 24h window is open.
type MessageService struct {
	ChannelRepo  repository.ChannelRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	Sender       provider.Sender
}

// SendFreeform rejects the send when the contact's conversation window is
// closed; only templates may go out then. idempotencyKey lets the caller
// retry an ambiguous timeout with the same key so the provider can dedupe;
// empty means a fresh key for a one-shot send.
func (s *MessageService) SendFreeform(ctx context.Context, channelID, contactID int, body, idempotencyKey string) (*provider.SendResult, error) {
	channel, err := s.ChannelRepo.GetByID(channelID)
	if err != nil {
		return nil, err
	}
	if channel == nil || !channel.Connected {
		return nil, appErrors.ErrChannelDisconnected
	}
	if channel.Blocked {
		return nil, appErrors.ErrChannelBlocked
	}

	contact, err := s.ContactRepo.GetByID(contactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, fmt.Errorf("contact %d not found", contactID)
	}

	if w := window.Check(contact.LastInboundAt, time.Now()); !w.Open {
		return nil, appErrors.ErrWindowClosed
	}

	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	return s.Sender.Send(ctx, provider.SendRequest{
		To:             contact.Phone,
		Body:           body,
		IdempotencyKey: idempotencyKey,
	})
}

// WindowFor reports the contact's current conversation window.
func (s *MessageService) WindowFor(contactID int) (window.Window, error) {
	contact, err := s.ContactRepo.GetByID(contactID)
	if err != nil {
		return window.Window{}, err
	}
	if contact == nil {
		return window.Window{}, fmt.Errorf("contact %d not found", contactID)
	}
	return window.Check(contact.LastInboundAt, time.Now()), nil
}

// RenderPreview shows a template body with one contact's values substituted.
func (s *MessageService) RenderPreview(templateID, contactID int) (string, error) {
	tmpl, err := s.TemplateRepo.GetByID(templateID)
	if err != nil {
		return "", err
	}
	if tmpl == nil {
		return "", fmt.Errorf("template %d not found", templateID)
	}
	contact, err := s.ContactRepo.GetByID(contactID)
	if err != nil {
		return "", err
	}
	if contact == nil {
		return "", fmt.Errorf("contact %d not found", contactID)
	}

	return RenderBody(tmpl.Body, map[string]string{
		"first_name": contact.FirstName,
		"last_name":  contact.LastName,
	}), nil
}
