package repository

import (
	"database/sql"
	"time"

	"github.com/b2stos/nexuszap-sub000/internal/model"
)

type ChannelRepositoryInterface interface {
	GetByID(id int) (*model.Channel, error)
	SetBlocked(id int, code, reason string, at time.Time) error
	ClearBlocked(id int) error
}

type ChannelRepository struct {
	DB *sql.DB
}

func (r *ChannelRepository) GetByID(id int) (*model.Channel, error) {
	query := `
        SELECT id, name, phone_number, connected, daily_limit, blocked, blocked_code,
               blocked_reason, blocked_at, created_at
        FROM channels WHERE id = $1
    `
	var c model.Channel
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.Name, &c.PhoneNumber, &c.Connected, &c.DailyLimit, &c.Blocked,
		&c.BlockedCode, &c.BlockedReason, &c.BlockedAt, &c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// SetBlocked flags the channel as rejected by the provider. The condition
// affects every campaign on the channel, not just the one that tripped it.
func (r *ChannelRepository) SetBlocked(id int, code, reason string, at time.Time) error {
	_, err := r.DB.Exec(`
        UPDATE channels SET blocked = TRUE, blocked_code = $2, blocked_reason = $3, blocked_at = $4
        WHERE id = $1
    `, id, code, reason, at)
	return err
}

func (r *ChannelRepository) ClearBlocked(id int) error {
	_, err := r.DB.Exec(`
        UPDATE channels SET blocked = FALSE, blocked_code = '', blocked_reason = '', blocked_at = NULL
        WHERE id = $1
    `, id)
	return err
}

var _ ChannelRepositoryInterface = (*ChannelRepository)(nil)
