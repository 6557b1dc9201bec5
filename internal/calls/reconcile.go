package calls

import (
	"context"
	"fmt"
	"time"

	"dating-platform/internal/audit"
)

// ReconcileReport counts what one sweep did.
type ReconcileReport struct {
	Scanned  int `json:"scanned"`
	Missed   int `json:"missed"`
	Failed   int `json:"failed"`
	Expired  int `json:"expired"`
	Rearmed  int `json:"rearmed"`
	Repaired int `json:"repaired"`
}

// Ended is the number of sessions the sweep terminated.
func (r ReconcileReport) Ended() int { return r.Missed + r.Failed + r.Expired }

// Reconcile recovers sessions whose timers were lost, e.g. after a restart.
//
//   - ringing past its ring deadline ends missed with a refund
//   - accepted past ring deadline plus the accept grace ends connection_failed with a refund
//   - connected past its duration deadline ends timer_expired, billing stays captured
//   - anything else live without a timer in this process gets its timer re-armed
//
// Recent ended sessions then get their refund or earnings posting re-applied.
// Postings are idempotent, so this only moves coins that were lost.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport

	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return rep, fmt.Errorf("list active sessions: %w", err)
	}
	var ended []CallSession
	for _, a := range active {
		rep.Scanned++
		sess, transitioned, err := s.reconcileOne(ctx, a.ID, &rep)
		if err != nil {
			s.log.Error("reconcile session failed", "call_id", a.ID, "err", err)
			continue
		}
		if transitioned {
			ended = append(ended, sess)
		}
	}
	for _, sess := range ended {
		s.audit.Record(ctx, audit.Event{
			Type:    audit.EventTypeReconciled,
			CallID:  sess.ID,
			UserID:  sess.CallerID,
			Coins:   sess.CoinAmount,
			Message: string(sess.EndReason),
		})
		s.notifyServerEnd(sess)
	}

	repaired, err := s.repairBilling(ctx)
	rep.Repaired = repaired
	if err != nil {
		return rep, err
	}
	if rep.Ended() > 0 || rep.Rearmed > 0 {
		s.log.Info("calls reconciled",
			"scanned", rep.Scanned, "missed", rep.Missed, "failed", rep.Failed,
			"expired", rep.Expired, "rearmed", rep.Rearmed, "repaired", rep.Repaired)
	}
	return rep, nil
}

func (s *Service) reconcileOne(ctx context.Context, callID string, rep *ReconcileReport) (CallSession, bool, error) {
	unlock := s.locks.Lock(callID)
	defer unlock()

	sess, err := s.repo.Get(ctx, callID)
	if err != nil {
		return CallSession{}, false, err
	}
	now := s.now()

	switch sess.Status {
	case StatusRinging:
		if !now.Before(sess.RingDeadline()) {
			out, ok, err := s.endLocked(ctx, sess, EndReasonMissed, "")
			if ok {
				rep.Missed++
			}
			return out, ok, err
		}
		if !s.timers.has(callID, timerRing) {
			s.armRingTimer(sess)
			rep.Rearmed++
		}
	case StatusAccepted:
		if !now.Before(sess.RingDeadline().Add(s.acceptGrace)) {
			out, ok, err := s.endLocked(ctx, sess, EndReasonConnectionFailed, "")
			if ok {
				rep.Failed++
			}
			return out, ok, err
		}
	case StatusConnected:
		left := sess.Deadline().Sub(now)
		if left <= 0 {
			out, ok, err := s.endLocked(ctx, sess, EndReasonTimerExpired, "")
			if ok {
				rep.Expired++
			}
			return out, ok, err
		}
		if !s.timers.has(callID, timerDuration) {
			s.armDurationTimer(sess, left)
			rep.Rearmed++
		}
	}
	return sess, false, nil
}

// repairBilling re-applies refunds and re-queues earnings for sessions created
// inside the repair window.
func (s *Service) repairBilling(ctx context.Context) (int, error) {
	now := s.now()
	recent, err := s.repo.ListCreatedBetween(ctx, now.Add(-s.repairWindow), now.Add(time.Second))
	if err != nil {
		return 0, fmt.Errorf("list recent sessions: %w", err)
	}
	n := 0
	for _, sess := range recent {
		if sess.CoinAmount <= 0 {
			continue
		}
		switch {
		case sess.Ended() && sess.BillingStatus == BillingRefunded:
			if _, err := s.wallet.Credit(ctx, refundPosting(sess)); err != nil {
				s.log.Error("refund repair failed", "call_id", sess.ID, "err", err)
				continue
			}
			n++
		case sess.BillingStatus == BillingCaptured:
			s.earnings.Add(earningPosting(sess))
			n++
		}
	}
	return n, nil
}
