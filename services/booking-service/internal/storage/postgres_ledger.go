package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/localli/booking/libs/db"
	"github.com/localli/booking/libs/outbox"
	"github.com/localli/booking/services/booking-service/internal/model"
)

const appointmentColumns = `
	a.id::text, a.business_id, a.customer_id, a.date::text, a.slot, a.confirmed,
	a.status, a.created_at, a.updated_at, a.cancelled_at`

// PostgresLedger stores appointments in Postgres. Slot uniqueness is the
// partial unique index appointments_active_slot_uq on
// (business_id, date, slot) WHERE status = 'booked'.
type PostgresLedger struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgresLedger(pool *db.Pool, outboxRepo *outbox.Repository) *PostgresLedger {
	return &PostgresLedger{pool: pool, outbox: outboxRepo}
}

func (l *PostgresLedger) Create(ctx context.Context, appt model.Appointment, events ...outbox.Event) (model.Appointment, error) {
	var created model.Appointment
	err := l.pool.InTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO appointments AS a (id, business_id, customer_id, date, slot, confirmed, status)
			VALUES ($1, $2, $3, $4::date, $5, false, 'booked')
			RETURNING `+appointmentColumns,
			appt.ID, appt.BusinessID, appt.CustomerID, appt.Date, appt.Slot)
		var err error
		if created, err = scanAppointment(row); err != nil {
			return err
		}
		return l.outbox.Insert(ctx, tx, events...)
	})
	if err != nil {
		return model.Appointment{}, translate(err, appt.ID)
	}
	return created, nil
}

func (l *PostgresLedger) Get(ctx context.Context, id string) (model.Appointment, error) {
	if err := checkID(id); err != nil {
		return model.Appointment{}, err
	}
	row := l.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments a WHERE a.id = $1::uuid`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, translate(err, id)
	}
	return appt, nil
}

func (l *PostgresLedger) Reschedule(ctx context.Context, id, newDate, newSlot string, events ...outbox.Event) (model.Appointment, error) {
	if err := checkID(id); err != nil {
		return model.Appointment{}, err
	}
	var updated model.Appointment
	err := l.pool.InTx(ctx, func(tx pgx.Tx) error {
		current, err := lockActive(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.SameSlot(current.BusinessID, newDate, newSlot) {
			updated = current
			return nil
		}
		row := tx.QueryRow(ctx, `
			UPDATE appointments AS a
			SET date = $2::date, slot = $3, confirmed = false, updated_at = now()
			WHERE a.id = $1::uuid
			RETURNING `+appointmentColumns,
			id, newDate, newSlot)
		if updated, err = scanAppointment(row); err != nil {
			return err
		}
		return l.outbox.Insert(ctx, tx, events...)
	})
	if err != nil {
		return model.Appointment{}, translate(err, id)
	}
	return updated, nil
}

func (l *PostgresLedger) Cancel(ctx context.Context, id string, events ...outbox.Event) (model.Appointment, error) {
	if err := checkID(id); err != nil {
		return model.Appointment{}, err
	}
	var cancelled model.Appointment
	err := l.pool.InTx(ctx, func(tx pgx.Tx) error {
		current, err := scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+` FROM appointments a WHERE a.id = $1::uuid FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if !current.Active() {
			cancelled = current
			return nil
		}
		row := tx.QueryRow(ctx, `
			UPDATE appointments AS a
			SET status = 'cancelled', cancelled_at = now(), updated_at = now()
			WHERE a.id = $1::uuid
			RETURNING `+appointmentColumns, id)
		if cancelled, err = scanAppointment(row); err != nil {
			return err
		}
		return l.outbox.Insert(ctx, tx, events...)
	})
	if err != nil {
		return model.Appointment{}, translate(err, id)
	}
	return cancelled, nil
}

func (l *PostgresLedger) Confirm(ctx context.Context, id string, events ...outbox.Event) (model.Appointment, error) {
	if err := checkID(id); err != nil {
		return model.Appointment{}, err
	}
	var confirmed model.Appointment
	err := l.pool.InTx(ctx, func(tx pgx.Tx) error {
		current, err := lockActive(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Confirmed {
			confirmed = current
			return nil
		}
		row := tx.QueryRow(ctx, `
			UPDATE appointments AS a
			SET confirmed = true, updated_at = now()
			WHERE a.id = $1::uuid
			RETURNING `+appointmentColumns, id)
		if confirmed, err = scanAppointment(row); err != nil {
			return err
		}
		return l.outbox.Insert(ctx, tx, events...)
	})
	if err != nil {
		return model.Appointment{}, translate(err, id)
	}
	return confirmed, nil
}

func (l *PostgresLedger) BookedSlots(ctx context.Context, businessID, date string) ([]string, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT slot
		FROM appointments
		WHERE business_id = $1 AND date = $2::date AND status = 'booked'
		ORDER BY slot
	`, businessID, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (l *PostgresLedger) ListForCustomer(ctx context.Context, customerID string) ([]model.Appointment, error) {
	return l.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.customer_id = $1
		ORDER BY a.date, a.slot, a.created_at
	`, customerID)
}

func (l *PostgresLedger) ListForBusiness(ctx context.Context, businessID string) ([]model.Appointment, error) {
	return l.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.business_id = $1
		ORDER BY a.date, a.slot, a.created_at
	`, businessID)
}

func (l *PostgresLedger) ListForOwner(ctx context.Context, ownerID string) ([]model.Appointment, error) {
	return l.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		JOIN businesses b ON b.id = a.business_id
		WHERE b.owner_id = $1
		ORDER BY a.date, a.slot, a.created_at
	`, ownerID)
}

func (l *PostgresLedger) list(ctx context.Context, query string, arg string) ([]model.Appointment, error) {
	rows, err := l.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func lockActive(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments a WHERE a.id = $1::uuid FOR UPDATE`, id))
	if err != nil {
		return model.Appointment{}, err
	}
	if !appt.Active() {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return appt, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.BusinessID,
		&appt.CustomerID,
		&appt.Date,
		&appt.Slot,
		&appt.Confirmed,
		&status,
		&appt.CreatedAt,
		&appt.UpdatedAt,
		&cancelledAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	appt.CancelledAt = cancelledAt
	return appt, nil
}

// checkID rejects ids that cannot be a stored appointment before they
// reach the uuid cast.
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: appointment %s", model.ErrNotFound, id)
	}
	return nil
}

func translate(err error, id string) error {
	switch {
	case db.IsNoRows(err):
		return fmt.Errorf("%w: appointment %s", model.ErrNotFound, id)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: slot already booked", model.ErrConflict)
	default:
		return err
	}
}
