// Package provider wraps the WhatsApp Business API broker. The broker accepts
// a message synchronously and confirms delivery later through webhooks, so the
// only result of a send is "accepted with a provider message id" or an error.
package provider

import "context"

// TemplateMessage is a pre-approved pattern with positional variables. It is
// the only message kind allowed outside the 24h conversation window.
type TemplateMessage struct {
	Name      string   `json:"name"`
	Language  string   `json:"language"`
	Variables []string `json:"variables,omitempty"`
}

type SendRequest struct {
	To       string           `json:"to"`
	Template *TemplateMessage `json:"template,omitempty"`
	Body     string           `json:"body,omitempty"` // free-form; mutually exclusive with Template
	// IdempotencyKey is client-assigned so an ambiguous timeout can be
	// retried without risking duplicate delivery.
	IdempotencyKey string `json:"idempotency_key"`
}

type SendResult struct {
	ProviderMessageID string `json:"provider_message_id"`
}

// Sender is the outbound adapter. Transport failures and broker business-rule
// failures both surface as errors; Classify tells them apart.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
}

// Revalidation is the broker's current view of a template, fetched as the
// pre-start gate so a locally cached "approved" cannot authorize a send the
// broker would reject.
type Revalidation struct {
	Status   string `json:"status"`
	CanUse   bool   `json:"can_use"`
	Mismatch bool   `json:"mismatch"`
}

type TemplateValidator interface {
	Revalidate(ctx context.Context, templateName, language string, cachedStatus string) (*Revalidation, error)
}
