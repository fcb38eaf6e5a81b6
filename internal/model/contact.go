package model

import "time"

type Contact struct {
	ID            int        `db:"id" json:"id"`
	Phone         string     `db:"phone" json:"phone"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	LastInboundAt *time.Time `db:"last_inbound_at" json:"last_inbound_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
