package signaling

import (
	"encoding/json"
	"time"

	"dating-platform/internal/media"
)

// Client to server.
const (
	OpCallRequest          = "call:request"
	OpCallAccept           = "call:accept"
	OpCallReject           = "call:reject"
	OpCallConnected        = "call:connected"
	OpCallEnd              = "call:end"
	OpCallRejoin           = "call:rejoin"
	OpCallConnectionFailed = "call:connection-failed"
)

// Server to client.
const (
	OpCallOutgoing     = "call:outgoing"
	OpCallIncoming     = "call:incoming"
	OpCallAccepted     = "call:accepted"
	OpCallProceed      = "call:proceed"
	OpCallRejected     = "call:rejected"
	OpCallStarted      = "call:started"
	OpCallEnded        = "call:ended"
	OpCallRejoinResume = "call:rejoin-proceed"
	OpCallForceEnd     = "call:force-end"
	OpCallMissed       = "call:missed"
	OpCallError        = "call:error"
)

// Relayed verbatim between the two participants.
const (
	OpWebRTCOffer        = "webrtc:offer"
	OpWebRTCAnswer       = "webrtc:answer"
	OpWebRTCICECandidate = "webrtc:ice-candidate"
)

type requestPayload struct {
	ReceiverID string `json:"receiver_id"`
	ChatID     string `json:"chat_id"`
}

type callRef struct {
	CallID string `json:"call_id"`
}

// webrtcPayload carries an opaque SDP or ICE blob. Payload is never decoded.
type webrtcPayload struct {
	CallID       string          `json:"call_id"`
	TargetUserID string          `json:"target_user_id"`
	FromUserID   string          `json:"from_user_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

type ringPayload struct {
	CallID             string `json:"call_id"`
	CallerID           string `json:"caller_id"`
	ReceiverID         string `json:"receiver_id"`
	ChatID             string `json:"chat_id,omitempty"`
	CoinAmount         int64  `json:"coin_amount"`
	Duration           int    `json:"duration"`
	RingTimeoutSeconds int    `json:"ring_timeout"`
}

type mediaPayload struct {
	CallID string      `json:"call_id"`
	Media  media.Token `json:"media"`
}

type rejectedPayload struct {
	CallID   string `json:"call_id"`
	Refunded bool   `json:"refunded"`
}

type startedPayload struct {
	CallID    string    `json:"call_id"`
	Duration  int       `json:"duration"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type endedPayload struct {
	CallID   string `json:"call_id"`
	Reason   string `json:"reason"`
	Duration int    `json:"duration"`
	Refunded bool   `json:"refunded"`
	EndedBy  string `json:"ended_by,omitempty"`
}

type rejoinPayload struct {
	CallID           string      `json:"call_id"`
	RemainingSeconds int         `json:"remaining_seconds"`
	Media            media.Token `json:"media"`
}

type forceEndPayload struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
}

// ErrorPayload is the body of call:error.
type ErrorPayload struct {
	CallID        string `json:"call_id,omitempty"`
	Message       string `json:"message"`
	Code          string `json:"code"`
	FundsAffected bool   `json:"funds_affected"`
}
