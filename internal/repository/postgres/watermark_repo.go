package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/allegro-webapi/internal/errs"
)

// WatermarkRepo implements repository.WatermarkRepository using PostgreSQL.
// Each consumer keeps its own row so several watchers can share a database.
type WatermarkRepo struct {
	db       *DB
	consumer string
}

// NewWatermarkRepo constructs a watermark repository for consumer.
func NewWatermarkRepo(db *DB, consumer string) *WatermarkRepo {
	return &WatermarkRepo{db: db, consumer: consumer}
}

// Load returns the stored rowId, or 0 when the consumer has none yet.
func (r *WatermarkRepo) Load(ctx context.Context) (int64, error) {
	const q = `
SELECT row_id FROM journal_watermarks WHERE consumer=$1`
	var row int64
	if err := r.db.Pool.QueryRow(ctx, q, r.consumer).Scan(&row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		if isUndefinedTable(err) {
			return 0, fmt.Errorf("%w: journal_watermarks missing, run migrations", errs.ErrConfiguration)
		}
		return 0, err
	}
	return row, nil
}

// Save stores rowID unless a higher watermark is already recorded.
func (r *WatermarkRepo) Save(ctx context.Context, rowID int64) error {
	const q = `
INSERT INTO journal_watermarks (consumer, row_id, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (consumer) DO UPDATE
SET row_id = GREATEST(journal_watermarks.row_id, EXCLUDED.row_id),
    updated_at = now()`
	_, err := r.db.Pool.Exec(ctx, q, r.consumer, rowID)
	if isUndefinedTable(err) {
		return fmt.Errorf("%w: journal_watermarks missing, run migrations", errs.ErrConfiguration)
	}
	return err
}
