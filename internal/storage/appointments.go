// Package storage holds the Postgres repositories. The appointment
// repository is the enforcement point for the per-slot capacity invariant.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jmcalloway/studiobook/internal/booking"
	"github.com/jmcalloway/studiobook/internal/model"
	"github.com/jmcalloway/studiobook/internal/outbox"
	"github.com/jmcalloway/studiobook/libs/db"
)

type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

// ReserveSlot counts active appointments overlapping the requested window
// and inserts the new one as a single atomic unit. A transaction-scoped
// advisory lock keyed by (type, window start) serializes concurrent
// requests for the same slot without blocking unrelated slots. The lock is
// released at commit, before any fan-out side effect runs.
func (r *AppointmentRepository) ReserveSlot(ctx context.Context, appt *model.Appointment, capacity int) error {
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		lockKey := fmt.Sprintf("%s:%s", appt.Type, appt.StartTime.UTC().Format(time.RFC3339))
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
			return err
		}

		var count int
		err := tx.QueryRow(ctx, `
			SELECT count(*)
			FROM appointments
			WHERE type = $1
				AND status IN ('scheduled', 'confirmed')
				AND start_time < $3
				AND end_time > $2
		`, appt.Type, appt.StartTime, appt.EndTime).Scan(&count)
		if err != nil {
			return err
		}
		if count >= capacity {
			return booking.ErrSlotFull
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO appointments
				(id, type, start_time, end_time, duration_minutes, status, customer_name, customer_email, customer_phone, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, appt.ID, appt.Type, appt.StartTime, appt.EndTime, appt.DurationMinutes, appt.Status,
			appt.CustomerName, appt.CustomerEmail, appt.CustomerPhone, appt.Notes)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id": appt.ID,
			"type":           appt.Type,
			"customer_email": appt.CustomerEmail,
			"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
			"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     outbox.EventAppointmentScheduled,
			Payload:       payload,
		})
	})
}

const appointmentColumns = `
	id, type, start_time, end_time, duration_minutes, status,
	COALESCE(lead_id::text, ''), COALESCE(calendar_event_id, ''),
	customer_name, customer_email, COALESCE(customer_phone, ''), COALESCE(notes, ''), created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.Type,
		&a.StartTime,
		&a.EndTime,
		&a.DurationMinutes,
		&a.Status,
		&a.LeadID,
		&a.CalendarEventID,
		&a.CustomerName,
		&a.CustomerEmail,
		&a.CustomerPhone,
		&a.Notes,
		&a.CreatedAt,
	)
	return a, err
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *AppointmentRepository) ListActiveBetween(ctx context.Context, apptType string, start, end time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE type = $1
			AND status IN ('scheduled', 'confirmed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, apptType, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *AppointmentRepository) SetLeadID(ctx context.Context, id, leadID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE appointments SET lead_id = $2 WHERE id = $1`, id, leadID)
	return err
}

func (r *AppointmentRepository) SetCalendarEventID(ctx context.Context, id, eventID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE appointments SET calendar_event_id = $2 WHERE id = $1`, id, eventID)
	return err
}

// UpdateStatus transitions the appointment and records the cancellation
// event in the same transaction when the new status is cancelled.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE appointments SET status = $2 WHERE id = $1`, id, status)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		if status != model.StatusCancelled {
			return nil
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id": id,
			"cancelled_at":   time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   id,
			EventType:     outbox.EventAppointmentCancelled,
			Payload:       payload,
		})
	})
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
