package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dating-platform/internal/audit"
	"dating-platform/internal/pricing"
	"dating-platform/internal/wallet"
	"dating-platform/pkg/logger"

	"github.com/google/uuid"
)

// Wallet is the coin store the state machine bills against.
type Wallet interface {
	Balance(ctx context.Context, userID string) (wallet.Balance, error)
	Debit(ctx context.Context, p wallet.Posting) (wallet.Balance, error)
	Credit(ctx context.Context, p wallet.Posting) (wallet.Balance, error)
}

// EarningsQueue accepts receiver credits for batched writing.
type EarningsQueue interface {
	Add(p wallet.Posting)
}

// Pricer snapshots price and timing for a new call.
type Pricer interface {
	Quote(ctx context.Context) (pricing.Quote, error)
}

// Options wires a Service. Repo, Wallet, Earnings and Pricer are required.
type Options struct {
	Repo     Repository
	Wallet   Wallet
	Earnings EarningsQueue
	Pricer   Pricer
	Guard    ParticipantGuard
	Audit    *audit.Service
	Logger   *slog.Logger

	// Scheduler and Clock are injectable for deterministic tests.
	Scheduler Scheduler
	Clock     func() time.Time

	// AcceptGrace is how long an accepted call may wait for media before the sweep fails it.
	AcceptGrace time.Duration
	// RepairWindow bounds how far back the sweep re-applies idempotent refunds and earnings.
	RepairWindow time.Duration
}

// Service is the server-authoritative call state machine.
//
// Every operation and timer firing for one call runs under that call's lock,
// and every state change is a compare-and-swap in the ledger.
type Service struct {
	repo     Repository
	wallet   Wallet
	earnings EarningsQueue
	pricer   Pricer
	guard    ParticipantGuard
	audit    *audit.Service
	log      *slog.Logger

	clock        func() time.Time
	locks        *keyedMutex
	timers       *timerRegistry
	acceptGrace  time.Duration
	repairWindow time.Duration

	hookMu      sync.RWMutex
	onServerEnd func(CallSession)
}

func NewService(opts Options) *Service {
	s := &Service{
		repo:         opts.Repo,
		wallet:       opts.Wallet,
		earnings:     opts.Earnings,
		pricer:       opts.Pricer,
		guard:        opts.Guard,
		audit:        opts.Audit,
		log:          logger.OrDefault(opts.Logger),
		clock:        opts.Clock,
		locks:        newKeyedMutex(),
		timers:       newTimerRegistry(opts.Scheduler),
		acceptGrace:  opts.AcceptGrace,
		repairWindow: opts.RepairWindow,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.guard == nil {
		s.guard = NewMemoryGuard(1)
	}
	if s.acceptGrace <= 0 {
		s.acceptGrace = time.Minute
	}
	if s.repairWindow <= 0 {
		s.repairWindow = time.Hour
	}
	return s
}

// OnServerEnd registers fn to run after a timer or the sweep ends a call.
// fn runs outside the call lock.
func (s *Service) OnServerEnd(fn func(CallSession)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onServerEnd = fn
}

// Close stops every pending timer. Sessions stay in the ledger for the next sweep.
func (s *Service) Close() {
	s.timers.stopAll()
}

func (s *Service) now() time.Time { return s.clock().UTC() }

// InitiateCall locks the caller's coins and opens a ringing session.
func (s *Service) InitiateCall(ctx context.Context, callerID, receiverID, chatID string) (CallSession, error) {
	if callerID == "" || receiverID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	if callerID == receiverID {
		return CallSession{}, ErrSelfCall
	}

	// The receiver must be creditable, or their earnings could never be paid.
	if _, err := s.wallet.Balance(ctx, receiverID); err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return CallSession{}, fmt.Errorf("%w: unknown receiver", ErrInvalidArgument)
		}
		return CallSession{}, fmt.Errorf("%w: look up receiver wallet: %w", ErrUnavailable, err)
	}

	quote, err := s.pricer.Quote(ctx)
	if err != nil {
		return CallSession{}, fmt.Errorf("%w: quote call price: %w", ErrUnavailable, err)
	}

	id := uuid.NewString()
	unlock := s.locks.Lock(id)
	defer unlock()

	release, err := s.reserveParticipants(ctx, id, callerID, receiverID)
	if err != nil {
		return CallSession{}, err
	}

	if quote.CoinAmount > 0 {
		_, err := s.wallet.Debit(ctx, wallet.Posting{
			UserID:         callerID,
			Amount:         quote.CoinAmount,
			Type:           wallet.LedgerEntryTypeCallLock,
			ExternalRef:    id,
			IdempotencyKey: wallet.CallLockKey(id),
		})
		if err != nil {
			release()
			switch {
			case errors.Is(err, wallet.ErrInsufficientFunds):
				return CallSession{}, ErrInsufficientFunds
			case errors.Is(err, wallet.ErrNotFound):
				return CallSession{}, fmt.Errorf("%w: unknown caller", ErrInvalidArgument)
			}
			return CallSession{}, fmt.Errorf("lock coins: %w", err)
		}
	}

	sess := CallSession{
		ID:                  id,
		CallerID:            callerID,
		ReceiverID:          receiverID,
		ChatID:              chatID,
		Status:              StatusRinging,
		BillingStatus:       BillingLocked,
		CoinAmount:          quote.CoinAmount,
		CallDurationSeconds: quote.DurationSeconds,
		RingTimeoutSeconds:  quote.RingTimeoutSeconds,
		CreatedAt:           s.now(),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		s.refund(ctx, sess)
		release()
		if errors.Is(err, ErrDuplicate) {
			return CallSession{}, ErrBusy
		}
		return CallSession{}, fmt.Errorf("create session: %w", err)
	}

	s.armRingTimer(sess)
	s.audit.Record(ctx, audit.Event{
		Type:        audit.EventTypeCoinsLocked,
		ActorUserID: callerID,
		CallID:      id,
		UserID:      callerID,
		Coins:       sess.CoinAmount,
	})
	s.log.Info("call initiated", "call_id", id, "caller_id", callerID, "receiver_id", receiverID, "coins", sess.CoinAmount)
	return sess, nil
}

// reserveParticipants takes the guard slot for both users and checks the ledger
// for sessions this process does not know about. The returned func undoes the guard.
func (s *Service) reserveParticipants(ctx context.Context, callID, callerID, receiverID string) (func(), error) {
	var held []string
	release := func() {
		for _, u := range held {
			if err := s.guard.Release(ctx, u, callID); err != nil {
				s.log.Warn("guard release failed", "call_id", callID, "user_id", u, "err", err)
			}
		}
	}
	for _, u := range []string{callerID, receiverID} {
		ok, err := s.guard.Acquire(ctx, u, callID)
		if err != nil {
			release()
			return nil, fmt.Errorf("%w: acquire call slot: %w", ErrUnavailable, err)
		}
		if !ok {
			release()
			return nil, ErrBusy
		}
		held = append(held, u)
	}
	for _, u := range []string{callerID, receiverID} {
		_, found, err := s.repo.FindActiveForUser(ctx, u)
		if err != nil {
			release()
			return nil, fmt.Errorf("%w: check active call: %w", ErrUnavailable, err)
		}
		if found {
			release()
			return nil, ErrBusy
		}
	}
	return release, nil
}

// AcceptCall moves a ringing call to accepted. Only the receiver may accept.
func (s *Service) AcceptCall(ctx context.Context, callID, userID string) (CallSession, error) {
	if callID == "" || userID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	unlock := s.locks.Lock(callID)
	sess, err := s.repo.Get(ctx, callID)
	if err != nil {
		unlock()
		return CallSession{}, err
	}
	if !sess.IsParticipant(userID) {
		unlock()
		return CallSession{}, ErrNotParticipant
	}
	if userID != sess.ReceiverID {
		unlock()
		return CallSession{}, fmt.Errorf("%w: only the receiver can accept", ErrInvalidState)
	}
	if sess.Status != StatusRinging {
		unlock()
		if sess.EndReason == EndReasonMissed {
			return CallSession{}, ErrCallExpired
		}
		return CallSession{}, ErrInvalidState
	}

	now := s.now()
	if !now.Before(sess.RingDeadline()) {
		// The ring timer is due; settle it here so the late accept cannot win.
		ended, transitioned, err := s.endLocked(ctx, sess, EndReasonMissed, "")
		unlock()
		if err != nil {
			return CallSession{}, err
		}
		if transitioned {
			s.notifyServerEnd(ended)
		}
		return CallSession{}, ErrCallExpired
	}
	defer unlock()

	next := sess
	next.Status = StatusAccepted
	next.AcceptedAt = &now
	ok, err := s.repo.Transition(ctx, next, StatusRinging)
	if err != nil {
		return CallSession{}, fmt.Errorf("accept call: %w", err)
	}
	if !ok {
		return CallSession{}, ErrInvalidState
	}
	s.timers.cancel(callID, timerRing)
	s.log.Info("call accepted", "call_id", callID, "user_id", userID)
	return next, nil
}

// RejectCall ends a ringing call as rejected and refunds the caller.
func (s *Service) RejectCall(ctx context.Context, callID, userID string) (CallSession, error) {
	if callID == "" || userID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	unlock := s.locks.Lock(callID)
	defer unlock()

	sess, err := s.repo.Get(ctx, callID)
	if err != nil {
		return CallSession{}, err
	}
	if !sess.IsParticipant(userID) {
		return CallSession{}, ErrNotParticipant
	}
	if userID != sess.ReceiverID {
		return CallSession{}, fmt.Errorf("%w: only the receiver can reject", ErrInvalidState)
	}
	if sess.Status != StatusRinging {
		return CallSession{}, ErrInvalidState
	}
	ended, transitioned, err := s.endLocked(ctx, sess, EndReasonRejected, userID)
	if err != nil {
		return CallSession{}, err
	}
	if !transitioned {
		return CallSession{}, ErrInvalidState
	}
	return ended, nil
}

// HandleMissedCall ends a still-ringing call as missed and refunds the caller.
// It is a no-op for a call that already left ringing.
func (s *Service) HandleMissedCall(ctx context.Context, callID string) (CallSession, bool, error) {
	if callID == "" {
		return CallSession{}, false, ErrInvalidArgument
	}
	unlock := s.locks.Lock(callID)
	defer unlock()
	return s.missedLocked(ctx, callID)
}

func (s *Service) missedLocked(ctx context.Context, callID string) (CallSession, bool, error) {
	sess, err := s.repo.Get(ctx, callID)
	if err != nil {
		return CallSession{}, false, err
	}
	if sess.Status != StatusRinging {
		return sess, false, nil
	}
	return s.endLocked(ctx, sess, EndReasonMissed, "")
}

// MarkCallConnected moves an accepted call to connected, queues the receiver's
// earnings and arms the duration timer. Repeating it on a connected call is a no-op;
// the bool reports whether this call made the transition.
func (s *Service) MarkCallConnected(ctx context.Context, callID, userID string) (CallSession, bool, error) {
	if callID == "" || userID == "" {
		return CallSession{}, false, ErrInvalidArgument
	}
	unlock := s.locks.Lock(callID)
	defer unlock()

	sess, err := s.repo.Get(ctx, callID)
	if err != nil {
		return CallSession{}, false, err
	}
	if !sess.IsParticipant(userID) {
		return CallSession{}, false, ErrNotParticipant
	}
	switch sess.Status {
	case StatusConnected:
		return sess, false, nil
	case StatusAccepted:
	default:
		return CallSession{}, false, ErrInvalidState
	}

	now := s.now()
	next := sess
	next.Status = StatusConnected
	next.BillingStatus = BillingCaptured
	next.ConnectedAt = &now
	ok, err := s.repo.Transition(ctx, next, StatusAccepted)
	if err != nil {
		return CallSession{}, false, fmt.Errorf("mark connected: %w", err)
	}
	if !ok {
		cur, err := s.repo.Get(ctx, callID)
		if err == nil && cur.Status == StatusConnected {
			return cur, false, nil
		}
		return CallSession{}, false, ErrInvalidState
	}

	if next.CoinAmount > 0 {
		s.earnings.Add(earningPosting(next))
	}
	s.armDurationTimer(next, time.Duration(next.CallDurationSeconds)*time.Second)

	s.audit.Record(ctx, audit.Event{
		Type:        audit.EventTypeCoinsCaptured,
		ActorUserID: userID,
		CallID:      callID,
		UserID:      next.CallerID,
		Coins:       next.CoinAmount,
	})
	s.audit.Record(ctx, audit.Event{
		Type:   audit.EventTypeEarningsQueued,
		CallID: callID,
		UserID: next.ReceiverID,
		Coins:  next.CoinAmount,
	})
	s.log.Info("call connected", "call_id", callID, "user_id", userID, "duration_seconds", next.CallDurationSeconds)
	return next, true, nil
}

// EndCall terminates a live call with reason. Ending an ended call returns the
// stored record; an unknown id returns a terminal not_found record. Neither is an error.
// The bool reports whether this call made the transition.
func (s *Service) EndCall(ctx context.Context, callID string, reason EndReason, requestingUserID string) (CallSession, bool, error) {
	if callID == "" || !reason.Valid() || reason == EndReasonNotFound {
		return CallSession{}, false, ErrInvalidArgument
	}
	unlock := s.locks.Lock(callID)
	defer unlock()

	sess, err := s.repo.Get(ctx, callID)
	if errors.Is(err, ErrNotFound) {
		return notFoundSession(callID), false, nil
	}
	if err != nil {
		return CallSession{}, false, err
	}
	if requestingUserID != "" && !sess.IsParticipant(requestingUserID) {
		return CallSession{}, false, ErrNotParticipant
	}
	if sess.Ended() {
		return sess, false, nil
	}
	return s.endLocked(ctx, sess, reason, requestingUserID)
}

// RejoinCall re-admits a participant to a connected call and re-arms the
// duration timer for exactly the time left on the original deadline.
func (s *Service) RejoinCall(ctx context.Context, callID, userID string) (CallSession, int, error) {
	if callID == "" || userID == "" {
		return CallSession{}, 0, ErrInvalidArgument
	}
	unlock := s.locks.Lock(callID)
	defer unlock()

	sess, err := s.repo.Get(ctx, callID)
	if err != nil {
		return CallSession{}, 0, err
	}
	if !sess.IsParticipant(userID) {
		return CallSession{}, 0, ErrNotParticipant
	}
	if sess.Status != StatusConnected {
		return CallSession{}, 0, ErrInvalidState
	}
	now := s.now()
	left := sess.Deadline().Sub(now)
	if left <= 0 {
		return CallSession{}, 0, fmt.Errorf("%w: %w", ErrInvalidState, ErrCallExpired)
	}
	s.armDurationTimer(sess, left)
	remaining := sess.RemainingSeconds(now)
	s.log.Info("call rejoined", "call_id", callID, "user_id", userID, "remaining_seconds", remaining)
	return sess, remaining, nil
}

// GetActiveCallForUser returns the user's live session, if any.
func (s *Service) GetActiveCallForUser(ctx context.Context, userID string) (CallSession, bool, error) {
	if userID == "" {
		return CallSession{}, false, ErrInvalidArgument
	}
	return s.repo.FindActiveForUser(ctx, userID)
}

// GetCall returns a session by id.
func (s *Service) GetCall(ctx context.Context, callID string) (CallSession, error) {
	if callID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, callID)
}

// endLocked commits the terminal transition, then settles money and releases
// timers and guard slots. Callers must hold the call lock.
func (s *Service) endLocked(ctx context.Context, sess CallSession, reason EndReason, by string) (CallSession, bool, error) {
	now := s.now()
	next := sess
	next.Status = StatusEnded
	next.EndReason = reason
	next.EndedBy = by
	next.EndedAt = &now
	if next.ConnectedAt == nil {
		next.BillingStatus = BillingRefunded
	} else {
		next.BillingStatus = BillingCaptured
	}

	ok, err := s.repo.Transition(ctx, next, sess.Status)
	if err != nil {
		return CallSession{}, false, fmt.Errorf("end call: %w", err)
	}
	if !ok {
		cur, err := s.repo.Get(ctx, sess.ID)
		if err != nil {
			return CallSession{}, false, err
		}
		return cur, false, nil
	}

	s.timers.cancelAll(sess.ID)
	if next.BillingStatus == BillingRefunded {
		s.refund(ctx, next)
	}
	for _, u := range []string{sess.CallerID, sess.ReceiverID} {
		if err := s.guard.Release(ctx, u, sess.ID); err != nil {
			s.log.Warn("guard release failed", "call_id", sess.ID, "user_id", u, "err", err)
		}
	}
	s.log.Info("call ended", "call_id", sess.ID, "reason", reason, "ended_by", by, "billing", next.BillingStatus)
	return next, true, nil
}

// refund returns the locked coins to the caller. Failures are logged and left
// for the reconcile sweep, which re-applies the same idempotent posting.
func (s *Service) refund(ctx context.Context, sess CallSession) {
	if sess.CoinAmount <= 0 {
		return
	}
	_, err := s.wallet.Credit(ctx, refundPosting(sess))
	if err != nil {
		s.log.Error("refund failed", "call_id", sess.ID, "user_id", sess.CallerID, "coins", sess.CoinAmount, "err", err)
		s.audit.Record(ctx, audit.Event{
			Type:    audit.EventTypeBillingFailure,
			CallID:  sess.ID,
			UserID:  sess.CallerID,
			Coins:   sess.CoinAmount,
			Message: "refund failed: " + err.Error(),
		})
		return
	}
	s.audit.Record(ctx, audit.Event{
		Type:   audit.EventTypeCoinsRefunded,
		CallID: sess.ID,
		UserID: sess.CallerID,
		Coins:  sess.CoinAmount,
	})
}

func refundPosting(sess CallSession) wallet.Posting {
	return wallet.Posting{
		UserID:         sess.CallerID,
		Amount:         sess.CoinAmount,
		Type:           wallet.LedgerEntryTypeCallRefund,
		ExternalRef:    sess.ID,
		IdempotencyKey: wallet.CallRefundKey(sess.ID),
	}
}

func earningPosting(sess CallSession) wallet.Posting {
	return wallet.Posting{
		UserID:         sess.ReceiverID,
		Amount:         sess.CoinAmount,
		Type:           wallet.LedgerEntryTypeCallEarning,
		ExternalRef:    sess.ID,
		IdempotencyKey: wallet.CallEarningKey(sess.ID),
	}
}

func notFoundSession(callID string) CallSession {
	return CallSession{ID: callID, Status: StatusEnded, EndReason: EndReasonNotFound}
}

func (s *Service) notifyServerEnd(sess CallSession) {
	s.hookMu.RLock()
	fn := s.onServerEnd
	s.hookMu.RUnlock()
	if fn != nil {
		fn(sess)
	}
}

const timerOpTimeout = 10 * time.Second

func (s *Service) armRingTimer(sess CallSession) {
	d := sess.RingDeadline().Sub(s.now())
	s.timers.schedule(sess.ID, timerRing, d, func(gen uint64) {
		s.fireTimer(sess.ID, timerRing, gen)
	})
}

func (s *Service) armDurationTimer(sess CallSession, d time.Duration) {
	s.timers.schedule(sess.ID, timerDuration, d, func(gen uint64) {
		s.fireTimer(sess.ID, timerDuration, gen)
	})
}

// fireTimer runs a timer's transition under the call lock, ignoring stale generations.
func (s *Service) fireTimer(callID string, kind timerKind, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), timerOpTimeout)
	defer cancel()

	unlock := s.locks.Lock(callID)
	if !s.timers.isCurrent(callID, kind, gen) {
		unlock()
		return
	}
	s.timers.clear(callID, kind, gen)

	var (
		ended        CallSession
		transitioned bool
		err          error
	)
	switch kind {
	case timerRing:
		ended, transitioned, err = s.missedLocked(ctx, callID)
	case timerDuration:
		ended, transitioned, err = s.expireLocked(ctx, callID)
	}
	unlock()

	if err != nil {
		s.log.Error("call timer failed", "call_id", callID, "timer", kind, "err", err)
		return
	}
	if transitioned {
		s.notifyServerEnd(ended)
	}
}

func (s *Service) expireLocked(ctx context.Context, callID string) (CallSession, bool, error) {
	sess, err := s.repo.Get(ctx, callID)
	if err != nil {
		return CallSession{}, false, err
	}
	if sess.Status != StatusConnected {
		return sess, false, nil
	}
	return s.endLocked(ctx, sess, EndReasonTimerExpired, "")
}
