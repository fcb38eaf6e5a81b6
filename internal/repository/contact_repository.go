package repository

import (
	"database/sql"
	"time"

	"github.com/b2stos/nexuszap-sub000/internal/model"
)

type ContactRepositoryInterface interface {
	GetByID(id int) (*model.Contact, error)
	UpdateLastInboundByPhone(phone string, at time.Time) error
}

type ContactRepository struct {
	DB *sql.DB
}

func (r *ContactRepository) GetByID(id int) (*model.Contact, error) {
	query := `
        SELECT id, phone, first_name, last_name, last_inbound_at, created_at
        FROM contacts WHERE id = $1
    `
	var c model.Contact
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.Phone, &c.FirstName, &c.LastName, &c.LastInboundAt, &c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// UpdateLastInboundByPhone opens (or extends) the contact's conversation
// window when an inbound message arrives. GREATEST keeps an out-of-order
// webhook from shrinking the window.
func (r *ContactRepository) UpdateLastInboundByPhone(phone string, at time.Time) error {
	_, err := r.DB.Exec(`
        UPDATE contacts
        SET last_inbound_at = GREATEST(COALESCE(last_inbound_at, $2), $2)
        WHERE phone = $1
    `, phone, at)
	return err
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
