package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dating-platform/pkg/utils"
)

// NOTE: This repository assumes the following tables exist:
// - users (id, coins, updated_at) with CHECK (coins >= 0)
// - coin_ledger (immutable append-only)
//
// It also assumes an idempotency constraint:
// UNIQUE (idempotency_key)

func getBalance(ctx context.Context, q queryer, userID string) (Balance, error) {
	const stmt = `
SELECT id, coins, updated_at
FROM users
WHERE id = $1
`
	var b Balance
	if err := q.QueryRowContext(ctx, stmt, userID).Scan(&b.UserID, &b.Coins, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

// insertLedgerOnce inserts the entry unless its idempotency key is already present.
// It reports whether a row was written.
func insertLedgerOnce(ctx context.Context, tx *sql.Tx, e LedgerEntry) (bool, error) {
	const stmt = `
INSERT INTO coin_ledger (
  id, user_id, type, amount, external_ref, idempotency_key, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (idempotency_key) DO NOTHING
`
	res, err := tx.ExecContext(ctx, stmt,
		e.ID,
		e.UserID,
		e.Type,
		e.Amount,
		nullIfEmpty(e.ExternalRef),
		e.IdempotencyKey,
		e.CreatedAt,
	)
	if err != nil {
		if utils.IsForeignKeyViolation(err) {
			return false, ErrNotFound
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// applyCoinDelta changes the balance with one conditional statement.
// A negative delta only applies while the balance covers it.
func applyCoinDelta(ctx context.Context, tx *sql.Tx, userID string, delta int64, now time.Time) (Balance, error) {
	const stmt = `
UPDATE users
SET coins = coins + $2, updated_at = $3
WHERE id = $1 AND coins + $2 >= 0
RETURNING id, coins, updated_at
`
	var b Balance
	err := tx.QueryRowContext(ctx, stmt, userID, delta, now).Scan(&b.UserID, &b.Coins, &b.UpdatedAt)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Balance{}, err
	}
	if _, err := getBalance(ctx, tx, userID); err != nil {
		return Balance{}, err
	}
	return Balance{}, ErrInsufficientFunds
}

func listLedgerByRef(ctx context.Context, db *sql.DB, externalRef string) ([]LedgerEntry, error) {
	const stmt = `
SELECT id, user_id, type, amount, COALESCE(external_ref, ''), idempotency_key, created_at
FROM coin_ledger
WHERE external_ref = $1
ORDER BY created_at ASC
`
	rows, err := db.QueryContext(ctx, stmt, externalRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.ExternalRef, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
