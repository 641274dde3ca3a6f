package storage

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jmcalloway/studiobook/internal/model"
	"github.com/jmcalloway/studiobook/libs/db"
)

// CommunicationRepository appends delivery-attempt records. Rows are
// write-once.
type CommunicationRepository struct {
	pool *db.Pool
}

func NewCommunicationRepository(pool *db.Pool) *CommunicationRepository {
	return &CommunicationRepository{pool: pool}
}

func (r *CommunicationRepository) Append(ctx context.Context, entry model.CommunicationLog) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO communication_logs (id, lead_id, type, direction, subject, content, status, metadata)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.LeadID, entry.Type, entry.Direction, entry.Subject, entry.Content, entry.Status, metadata)
	return err
}
