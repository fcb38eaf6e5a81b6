package model

import "time"

type Channel struct {
	ID            int        `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	PhoneNumber   string     `db:"phone_number" json:"phone_number"`
	Connected     bool       `db:"connected" json:"connected"`
	DailyLimit    *int       `db:"daily_limit" json:"daily_limit,omitempty"` // nil = unlimited
	Blocked       bool       `db:"blocked" json:"blocked"`
	BlockedCode   string     `db:"blocked_code" json:"blocked_code,omitempty"`
	BlockedReason string     `db:"blocked_reason" json:"blocked_reason,omitempty"`
	BlockedAt     *time.Time `db:"blocked_at" json:"blocked_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Sendable reports whether the channel can accept new outbound traffic.
func (c *Channel) Sendable() bool {
	return c.Connected && !c.Blocked
}
