package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dating-platform/pkg/utils"
)

// NOTE: PostgresRepo assumes the call_sessions table from db/schema.sql.

const sessionColumns = `id, caller_id, receiver_id, COALESCE(chat_id, ''), status, billing_status,
coin_amount, call_duration_seconds, ring_timeout_seconds,
created_at, accepted_at, connected_at, ended_at, COALESCE(end_reason, ''), COALESCE(ended_by, '')`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, s CallSession) error {
	const q = `
INSERT INTO call_sessions (
  id, caller_id, receiver_id, chat_id, status, billing_status,
  coin_amount, call_duration_seconds, ring_timeout_seconds, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := r.db.ExecContext(ctx, q,
		s.ID,
		s.CallerID,
		s.ReceiverID,
		nullIfEmpty(s.ChatID),
		s.Status,
		s.BillingStatus,
		s.CoinAmount,
		s.CallDurationSeconds,
		s.RingTimeoutSeconds,
		s.CreatedAt,
	)
	if utils.IsUniqueViolation(err) {
		// Either the id or one of the one-live-call-per-user indexes.
		return ErrDuplicate
	}
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (CallSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return CallSession{}, ErrNotFound
	}
	return s, err
}

func (r *PostgresRepo) Transition(ctx context.Context, next CallSession, from ...Status) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition requires at least one source status")
	}
	args := []any{
		next.ID,
		next.Status,
		next.BillingStatus,
		next.AcceptedAt,
		next.ConnectedAt,
		next.EndedAt,
		nullIfEmpty(string(next.EndReason)),
		nullIfEmpty(next.EndedBy),
	}
	holders := make([]string, 0, len(from))
	for _, st := range from {
		args = append(args, st)
		holders = append(holders, fmt.Sprintf("$%d", len(args)))
	}
	q := `
UPDATE call_sessions
SET status = $2, billing_status = $3, accepted_at = $4, connected_at = $5,
    ended_at = $6, end_reason = $7, ended_by = $8
WHERE id = $1 AND status IN (` + strings.Join(holders, ",") + `)
`
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) FindActiveForUser(ctx context.Context, userID string) (CallSession, bool, error) {
	q := `SELECT ` + sessionColumns + `
FROM call_sessions
WHERE status <> 'ended' AND (caller_id = $1 OR receiver_id = $1)
ORDER BY created_at DESC
LIMIT 1`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return CallSession{}, false, nil
	}
	if err != nil {
		return CallSession{}, false, err
	}
	return s, true, nil
}

func (r *PostgresRepo) ListActive(ctx context.Context) ([]CallSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE status <> 'ended' ORDER BY created_at ASC`
	return r.list(ctx, q)
}

func (r *PostgresRepo) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]CallSession, error) {
	q := `SELECT ` + sessionColumns + `
FROM call_sessions
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at ASC`
	return r.list(ctx, q, from, to)
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]CallSession, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (CallSession, error) {
	var s CallSession
	var accepted, connected, ended sql.NullTime
	err := row.Scan(
		&s.ID,
		&s.CallerID,
		&s.ReceiverID,
		&s.ChatID,
		&s.Status,
		&s.BillingStatus,
		&s.CoinAmount,
		&s.CallDurationSeconds,
		&s.RingTimeoutSeconds,
		&s.CreatedAt,
		&accepted,
		&connected,
		&ended,
		&s.EndReason,
		&s.EndedBy,
	)
	if err != nil {
		return CallSession{}, err
	}
	s.AcceptedAt = timePtr(accepted)
	s.ConnectedAt = timePtr(connected)
	s.EndedAt = timePtr(ended)
	return s, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
