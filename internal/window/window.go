// Package window computes the provider's 24-hour conversation window. Outside
// the window only pre-approved template messages may be sent to a contact.
// This is provider policy, not configuration.
package window

import "time"

const Duration = 24 * time.Hour

type Window struct {
	Open      bool       `json:"open"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Check returns the window state for a contact given the timestamp of their
// last inbound message. A contact that never wrote in has no window.
func Check(lastInboundAt *time.Time, now time.Time) Window {
	if lastInboundAt == nil {
		return Window{}
	}
	expires := lastInboundAt.Add(Duration)
	if now.Before(expires) {
		return Window{Open: true, ExpiresAt: &expires}
	}
	return Window{}
}
