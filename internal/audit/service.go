package audit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"dating-platform/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records the billing trail of calls.
//
// IMPORTANT:
// - Audit is internal-only.
// - Callers should treat audit logging as best-effort; Record never returns an error.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: logger.OrDefault(log), clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.CallID == "" && e.UserID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends and logs failures instead of returning them.
func (s *Service) Record(ctx context.Context, e Event) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, e); err != nil {
		s.log.Warn("audit append failed", "type", e.Type, "call_id", e.CallID, "err", err)
	}
}

// LogAdminReconcile records a manual reconciliation run.
func (s *Service) LogAdminReconcile(ctx context.Context, actorUserID, actorRole string, ended int) error {
	return s.Append(ctx, Event{
		Type:        EventTypeAdminReconcile,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		UserID:      actorUserID,
		Message:     "manual reconcile ended " + strconv.Itoa(ended) + " sessions",
	})
}


// LogDroppedEarning records a receiver credit that could not be paid and was
// removed from the earnings queue. These need manual follow-up.
func (s *Service) LogDroppedEarning(ctx context.Context, callID, userID string, coins int64, reason error) {
	msg := "earning dropped"
	if reason != nil {
		msg += ": " + reason.Error()
	}
	s.Record(ctx, Event{
		Type:    EventTypeBillingFailure,
		CallID:  callID,
		UserID:  userID,
		Coins:   coins,
		Message: msg,
	})
}
