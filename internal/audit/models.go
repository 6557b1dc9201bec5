package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Audit is best-effort; do not block call signaling on audit failures.
//
// Storage (Postgres): table audit_events with an INSERT-only policy.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the user causing the event. Empty for timer and sweep actions.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// Target identifiers.
	CallID string `json:"call_id,omitempty" db:"call_id"`
	UserID string `json:"user_id,omitempty" db:"user_id"`

	// Coins moved by the event, unsigned.
	Coins int64 `json:"coins,omitempty" db:"coins"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCoinsLocked    EventType = "coins_locked"
	EventTypeCoinsRefunded  EventType = "coins_refunded"
	EventTypeCoinsCaptured  EventType = "coins_captured"
	EventTypeEarningsQueued EventType = "earnings_queued"
	EventTypeBillingFailure EventType = "billing_failure"
	EventTypeReconciled     EventType = "call_reconciled"
	EventTypeAdminReconcile EventType = "admin_reconcile"
)
