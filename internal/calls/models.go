package calls

import "time"

// CallSession is one caller to receiver video-call attempt.
//
// Money invariant reminder: coin movements reference the call id in the wallet
// ledger (external_ref); BillingStatus only records which outcome was applied.
//
// CoinAmount, CallDurationSeconds and RingTimeoutSeconds are snapshotted at creation.
type CallSession struct {
	ID         string `json:"call_id" db:"id"`
	CallerID   string `json:"caller_id" db:"caller_id"`
	ReceiverID string `json:"receiver_id" db:"receiver_id"`
	ChatID     string `json:"chat_id,omitempty" db:"chat_id"`

	Status        Status        `json:"status" db:"status"`
	BillingStatus BillingStatus `json:"billing_status" db:"billing_status"`

	CoinAmount          int64 `json:"coin_amount" db:"coin_amount"`
	CallDurationSeconds int   `json:"call_duration_seconds" db:"call_duration_seconds"`
	RingTimeoutSeconds  int   `json:"ring_timeout_seconds" db:"ring_timeout_seconds"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty" db:"connected_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	EndReason EndReason `json:"end_reason,omitempty" db:"end_reason"`
	EndedBy   string    `json:"ended_by,omitempty" db:"ended_by"`
}

type Status string

const (
	StatusRinging   Status = "ringing"
	StatusAccepted  Status = "accepted"
	StatusConnected Status = "connected"
	StatusEnded     Status = "ended"
)

type BillingStatus string

const (
	BillingLocked   BillingStatus = "locked"
	BillingCaptured BillingStatus = "captured"
	BillingRefunded BillingStatus = "refunded"
)

type EndReason string

const (
	EndReasonMissed               EndReason = "missed"
	EndReasonRejected             EndReason = "rejected"
	EndReasonCallerEnded          EndReason = "caller_ended"
	EndReasonReceiverEnded        EndReason = "receiver_ended"
	EndReasonTimerExpired         EndReason = "timer_expired"
	EndReasonConnectionFailed     EndReason = "connection_failed"
	EndReasonCallerDisconnected   EndReason = "caller_disconnected"
	EndReasonReceiverDisconnected EndReason = "receiver_disconnected"
	EndReasonNotFound             EndReason = "not_found"
)

// Valid reports whether r is a known terminal cause.
func (r EndReason) Valid() bool {
	switch r {
	case EndReasonMissed, EndReasonRejected, EndReasonCallerEnded, EndReasonReceiverEnded,
		EndReasonTimerExpired, EndReasonConnectionFailed, EndReasonCallerDisconnected,
		EndReasonReceiverDisconnected, EndReasonNotFound:
		return true
	}
	return false
}

// ActorEndReason is the reason recorded when userID hangs up.
func ActorEndReason(s CallSession, userID string) EndReason {
	if userID == s.CallerID {
		return EndReasonCallerEnded
	}
	return EndReasonReceiverEnded
}

// DisconnectEndReason is the reason recorded when userID's transport goes away.
func DisconnectEndReason(s CallSession, userID string) EndReason {
	if userID == s.CallerID {
		return EndReasonCallerDisconnected
	}
	return EndReasonReceiverDisconnected
}

func (s CallSession) IsParticipant(userID string) bool {
	return userID != "" && (userID == s.CallerID || userID == s.ReceiverID)
}

// Peer returns the other participant, or "" if userID is not in the call.
func (s CallSession) Peer(userID string) string {
	switch userID {
	case s.CallerID:
		return s.ReceiverID
	case s.ReceiverID:
		return s.CallerID
	}
	return ""
}

func (s CallSession) Ended() bool { return s.Status == StatusEnded }

// Deadline is when the connected call must be cut off. Zero if never connected.
func (s CallSession) Deadline() time.Time {
	if s.ConnectedAt == nil {
		return time.Time{}
	}
	return s.ConnectedAt.Add(time.Duration(s.CallDurationSeconds) * time.Second)
}

// RingDeadline is when a ringing call counts as missed.
func (s CallSession) RingDeadline() time.Time {
	return s.CreatedAt.Add(time.Duration(s.RingTimeoutSeconds) * time.Second)
}

// RemainingSeconds is the connected time left at now, rounded down, never negative.
func (s CallSession) RemainingSeconds(now time.Time) int {
	if s.ConnectedAt == nil {
		return 0
	}
	left := s.Deadline().Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// ConnectedSeconds is how long the call was connected, capped at the purchased duration.
func (s CallSession) ConnectedSeconds() int {
	if s.ConnectedAt == nil || s.EndedAt == nil {
		return 0
	}
	d := int(s.EndedAt.Sub(*s.ConnectedAt) / time.Second)
	if d < 0 {
		return 0
	}
	if d > s.CallDurationSeconds {
		return s.CallDurationSeconds
	}
	return d
}
