package calls

import (
	"context"
	"time"
)

// Repository is the call ledger. It exclusively owns persisted sessions.
//
// Transition is the only mutation of an existing row and is a compare-and-swap
// on status, so two racing terminations cannot both win.
type Repository interface {
	Create(ctx context.Context, s CallSession) error
	Get(ctx context.Context, id string) (CallSession, error)

	// Transition stores next if the current status is one of from.
	// It reports false when the row is missing or already moved on.
	Transition(ctx context.Context, next CallSession, from ...Status) (bool, error)

	// FindActiveForUser returns the newest non-ended session where userID is caller or receiver.
	FindActiveForUser(ctx context.Context, userID string) (CallSession, bool, error)
	ListActive(ctx context.Context) ([]CallSession, error)
	// ListCreatedBetween returns sessions with from <= created_at < to.
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]CallSession, error)
}
