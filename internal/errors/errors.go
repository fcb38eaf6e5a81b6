// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// Validation failures that block an operator command outright. No retry.
var (
	ErrNoRecipients        = errors.New("campaign has no recipients")
	ErrChannelDisconnected = errors.New("channel is not connected")
	ErrChannelBlocked      = errors.New("channel is blocked by the provider")
	ErrTemplateNotApproved = errors.New("template is not approved")
	ErrWindowClosed        = errors.New("conversation window is closed, only template messages allowed")
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrInvalidTransition reports a status move rejected by the transition table.
type ErrInvalidTransition struct {
	Entity string
	From   string
	To     string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func NewInvalidTransition(entity, from, to string) error {
	return &ErrInvalidTransition{Entity: entity, From: from, To: to}
}
