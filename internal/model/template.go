package model

import "time"

type TemplateStatus string

const (
	TemplateApproved TemplateStatus = "approved"
	TemplatePending  TemplateStatus = "pending"
	TemplateRejected TemplateStatus = "rejected"
)

type Template struct {
	ID        int            `db:"id" json:"id"`
	ChannelID int            `db:"channel_id" json:"channel_id"`
	Name      string         `db:"name" json:"name"`
	Language  string         `db:"language" json:"language"`
	Body      string         `db:"body" json:"body"`
	Status    TemplateStatus `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
