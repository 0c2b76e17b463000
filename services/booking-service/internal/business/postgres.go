package business

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/localli/booking/libs/db"
	"github.com/localli/booking/services/booking-service/internal/model"
)

type PostgresDirectory struct {
	pool *db.Pool
}

func NewPostgresDirectory(pool *db.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) Get(ctx context.Context, id string) (model.Business, error) {
	var b model.Business
	var open, closing *string
	err := d.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, open_time, close_time, slot_minutes, timezone
		FROM businesses
		WHERE id = $1
	`, id).Scan(&b.ID, &b.OwnerID, &b.Name, &open, &closing, &b.SlotMinutes, &b.Timezone)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Business{}, fmt.Errorf("%w: business %s", model.ErrNotFound, id)
		}
		return model.Business{}, err
	}
	if open != nil && closing != nil {
		b.Hours = &model.Hours{Open: *open, Close: *closing}
	}
	return b, nil
}

func (d *PostgresDirectory) ListIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id FROM businesses WHERE owner_id = $1 ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Upsert writes b, replacing hours and slot settings of an existing row.
func (d *PostgresDirectory) Upsert(ctx context.Context, b model.Business) error {
	var open, closing *string
	if b.Hours != nil {
		open, closing = &b.Hours.Open, &b.Hours.Close
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO businesses (id, owner_id, name, open_time, close_time, slot_minutes, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			open_time = EXCLUDED.open_time,
			close_time = EXCLUDED.close_time,
			slot_minutes = EXCLUDED.slot_minutes,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`, b.ID, b.OwnerID, b.Name, open, closing, b.SlotMinutes, b.Location())
	return err
}
