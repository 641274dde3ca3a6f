package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jmcalloway/studiobook/internal/model"
	"github.com/jmcalloway/studiobook/internal/outbox"
	"github.com/jmcalloway/studiobook/libs/db"
)

// FollowUpRepository persists the reminder task queue. Terminal
// transitions are guarded by a status = 'pending' predicate so a task can
// only leave pending once.
type FollowUpRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewFollowUpRepository(pool *db.Pool, outboxRepo *outbox.Repository) *FollowUpRepository {
	return &FollowUpRepository{pool: pool, outbox: outboxRepo}
}

func (r *FollowUpRepository) CreateBatch(ctx context.Context, tasks []model.FollowUpTask) error {
	if len(tasks) == 0 {
		return nil
	}
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		for _, t := range tasks {
			_, err := tx.Exec(ctx, `
				INSERT INTO lead_follow_ups (id, lead_id, sequence_type, scheduled_for, status)
				VALUES ($1, $2, $3, $4, $5)
			`, t.ID, t.LeadID, t.SequenceType, t.ScheduledFor, t.Status)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

const followUpColumns = `
	id, lead_id, sequence_type, scheduled_for, status, sent_at, attempts, COALESCE(last_error, ''), created_at`

func scanFollowUp(row pgx.Row) (model.FollowUpTask, error) {
	var t model.FollowUpTask
	err := row.Scan(
		&t.ID,
		&t.LeadID,
		&t.SequenceType,
		&t.ScheduledFor,
		&t.Status,
		&t.SentAt,
		&t.Attempts,
		&t.LastError,
		&t.CreatedAt,
	)
	return t, err
}

func (r *FollowUpRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]model.FollowUpTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+followUpColumns+`
		FROM lead_follow_ups
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.FollowUpTask
	for rows.Next() {
		t, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tasks, nil
}

func (r *FollowUpRepository) ListByLead(ctx context.Context, leadID string) ([]model.FollowUpTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+followUpColumns+`
		FROM lead_follow_ups
		WHERE lead_id = $1
		ORDER BY scheduled_for
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.FollowUpTask
	for rows.Next() {
		t, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tasks, nil
}

func (r *FollowUpRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE lead_follow_ups
			SET status = 'sent', sent_at = $2
			WHERE id = $1 AND status = 'pending'
		`, id, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// Already finalized by another run; nothing to record.
			return nil
		}
		return r.insertEvent(ctx, tx, id, outbox.EventFollowUpSent, map[string]any{
			"task_id": id,
			"sent_at": at.Format(time.RFC3339),
		})
	})
}

func (r *FollowUpRepository) Reschedule(ctx context.Context, id string, attempts int, nextRunAt time.Time, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lead_follow_ups
		SET attempts = $2, scheduled_for = $3, last_error = $4
		WHERE id = $1 AND status = 'pending'
	`, id, attempts, nextRunAt, reason)
	return err
}

func (r *FollowUpRepository) MarkFailed(ctx context.Context, id string, attempts int, reason string) error {
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE lead_follow_ups
			SET status = 'failed', attempts = $2, last_error = $3
			WHERE id = $1 AND status = 'pending'
		`, id, attempts, reason)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return r.insertEvent(ctx, tx, id, outbox.EventFollowUpFailed, map[string]any{
			"task_id":      id,
			"error_reason": reason,
		})
	})
}

func (r *FollowUpRepository) insertEvent(ctx context.Context, tx pgx.Tx, taskID, eventType string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "follow_up",
		AggregateID:   taskID,
		EventType:     eventType,
		Payload:       raw,
	})
}
