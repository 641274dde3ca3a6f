package storage

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/jmcalloway/studiobook/internal/model"
	"github.com/jmcalloway/studiobook/libs/db"
)

// LeadRepository reads and upserts rows in the CRM-shared leads table.
type LeadRepository struct {
	pool *db.Pool
}

func NewLeadRepository(pool *db.Pool) *LeadRepository {
	return &LeadRepository{pool: pool}
}

// CreateOrLink upserts by email: an existing lead is reused (filling in any
// missing name/phone), a new one is created otherwise.
func (r *LeadRepository) CreateOrLink(ctx context.Context, lead model.Lead) (model.Lead, error) {
	email := strings.ToLower(strings.TrimSpace(lead.Email))

	var out model.Lead
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads (id, name, email, phone, source, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			name = COALESCE(NULLIF(leads.name, ''), excluded.name),
			phone = COALESCE(NULLIF(leads.phone, ''), excluded.phone)
		RETURNING id, name, email, COALESCE(phone, ''), COALESCE(source, ''), COALESCE(notes, ''), created_at
	`, uuid.NewString(), lead.Name, email, lead.Phone, lead.Source, lead.Notes).Scan(
		&out.ID,
		&out.Name,
		&out.Email,
		&out.Phone,
		&out.Source,
		&out.Notes,
		&out.CreatedAt,
	)
	if err != nil {
		return model.Lead{}, err
	}
	return out, nil
}

func (r *LeadRepository) Get(ctx context.Context, id string) (model.Lead, error) {
	var out model.Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, COALESCE(phone, ''), COALESCE(source, ''), COALESCE(notes, ''), created_at
		FROM leads
		WHERE id = $1
	`, id).Scan(
		&out.ID,
		&out.Name,
		&out.Email,
		&out.Phone,
		&out.Source,
		&out.Notes,
		&out.CreatedAt,
	)
	if err != nil {
		return model.Lead{}, err
	}
	return out, nil
}
