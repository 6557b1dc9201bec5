package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to audit_events. It has no update or delete paths.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, actor_user_id, actor_role, call_id, user_id, coins, message, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Type,
		nullIfEmpty(e.ActorUserID),
		nullIfEmpty(e.ActorRole),
		nullIfEmpty(e.CallID),
		nullIfEmpty(e.UserID),
		e.Coins,
		nullIfEmpty(e.Message),
		e.CreatedAt,
	)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
