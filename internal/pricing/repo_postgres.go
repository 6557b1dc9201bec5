package pricing

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo reads the call_settings table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) FindCallSettings(ctx context.Context, at time.Time) (CallSettings, bool, error) {
	const q = `
SELECT id, coin_price, duration_seconds, ring_timeout_seconds, effective_from, effective_to, status, created_at, updated_at
FROM call_settings
WHERE status = 'active'
  AND effective_from <= $1
  AND (effective_to IS NULL OR effective_to > $1)
ORDER BY effective_from DESC
LIMIT 1
`
	var s CallSettings
	var to sql.NullTime
	err := r.db.QueryRowContext(ctx, q, at).Scan(
		&s.ID,
		&s.CoinPrice,
		&s.DurationSeconds,
		&s.RingTimeoutSeconds,
		&s.EffectiveFrom,
		&to,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSettings{}, false, nil
		}
		return CallSettings{}, false, err
	}
	if to.Valid {
		t := to.Time
		s.EffectiveTo = &t
	}
	return s, true, nil
}
