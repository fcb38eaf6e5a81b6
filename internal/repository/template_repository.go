package repository

import (
	"database/sql"

	"github.com/b2stos/nexuszap-sub000/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(id int) (*model.Template, error)
	UpdateStatus(id int, status model.TemplateStatus) error
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) GetByID(id int) (*model.Template, error) {
	query := `
        SELECT id, channel_id, name, language, body, status, created_at, updated_at
        FROM templates WHERE id = $1
    `
	var t model.Template
	err := r.DB.QueryRow(query, id).Scan(
		&t.ID, &t.ChannelID, &t.Name, &t.Language, &t.Body, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// UpdateStatus corrects the locally cached template status after the broker
// reported a mismatch.
func (r *TemplateRepository) UpdateStatus(id int, status model.TemplateStatus) error {
	_, err := r.DB.Exec(
		`UPDATE templates SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id,
	)
	return err
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
