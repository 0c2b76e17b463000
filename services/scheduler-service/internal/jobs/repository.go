package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/localli/booking/libs/otel"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Job is one reminder to emit for an appointment on one channel.
type Job struct {
	ID             int64
	IdempotencyKey string
	AppointmentID  string
	BusinessID     string
	CustomerID     string
	Channel        string
	StartsAt       time.Time
	RemindAt       time.Time
	TemplateData   map[string]any
	Traceparent    string
	Tracestate     string
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
}

// Key identifies a reminder independent of the row id.
func Key(appointmentID string, remindAt time.Time, channel string) string {
	return appointmentID + "|" + remindAt.UTC().Format(time.RFC3339) + "|" + channel
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert stores a pending job. A cancelled job with the same key is revived,
// which happens when an appointment is moved back to a time it held before.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, job Job) error {
	if job.TemplateData == nil {
		job.TemplateData = map[string]any{}
	}
	payload, err := json.Marshal(job.TemplateData)
	if err != nil {
		return err
	}
	if job.IdempotencyKey == "" {
		job.IdempotencyKey = Key(job.AppointmentID, job.RemindAt, job.Channel)
	}
	tc := otelx.CaptureTraceContext(ctx)
	_, err = tx.Exec(ctx, `
		INSERT INTO reminder_jobs (idempotency_key, appointment_id, business_id, customer_id, channel, starts_at, remind_at, template_data, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $7, $9, $10)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = 'pending',
		    attempts = 0,
		    next_run_at = EXCLUDED.next_run_at,
		    template_data = EXCLUDED.template_data,
		    last_error = '',
		    updated_at = now()
		WHERE reminder_jobs.status = 'cancelled'
	`, job.IdempotencyKey, job.AppointmentID, job.BusinessID, job.CustomerID, job.Channel, job.StartsAt, job.RemindAt, payload, tc.Parent, tc.State)
	return err
}

// Advance records that an event for appointmentID happened at occurredAt and
// reports whether it should be applied. Events older than the last applied one
// are stale, and nothing is applied after a cancellation.
func (r *Repository) Advance(ctx context.Context, tx pgx.Tx, appointmentID string, occurredAt time.Time, cancelled bool) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO appointment_state (appointment_id, last_event_at, cancelled)
		VALUES ($1, $2, $3)
		ON CONFLICT (appointment_id) DO UPDATE
		SET last_event_at = GREATEST(appointment_state.last_event_at, EXCLUDED.last_event_at),
		    cancelled = EXCLUDED.cancelled,
		    updated_at = now()
		WHERE NOT appointment_state.cancelled
		  AND (EXCLUDED.cancelled OR appointment_state.last_event_at <= EXCLUDED.last_event_at)
	`, appointmentID, occurredAt.UTC(), cancelled)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CancelPending cancels every pending job of an appointment and returns how many it touched.
func (r *Repository) CancelPending(ctx context.Context, tx pgx.Tx, appointmentID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'cancelled', updated_at = now()
		WHERE appointment_id = $1 AND status = 'pending'
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, idempotency_key, appointment_id, business_id, customer_id, channel, starts_at, remind_at, template_data, traceparent, tracestate, attempts, max_attempts, next_run_at
		FROM reminder_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var raw []byte
		if err := rows.Scan(&j.ID, &j.IdempotencyKey, &j.AppointmentID, &j.BusinessID, &j.CustomerID, &j.Channel, &j.StartsAt, &j.RemindAt, &raw, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
			return nil, err
		}
		j.TemplateData = map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &j.TemplateData); err != nil {
				return nil, err
			}
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'processed', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := StatusPending
	if attempts >= maxAttempts {
		status = StatusFailed
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}
