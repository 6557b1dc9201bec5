// Package signaling bridges socket events to the call state machine and fans
// results out to both participants through the presence registry.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dating-platform/internal/calls"
	"dating-platform/internal/media"
	"dating-platform/internal/notify"
	"dating-platform/internal/realtime"
	"dating-platform/pkg/logger"
)

// Engine is the subset of calls.Service the relay drives.
type Engine interface {
	InitiateCall(ctx context.Context, callerID, receiverID, chatID string) (calls.CallSession, error)
	AcceptCall(ctx context.Context, callID, userID string) (calls.CallSession, error)
	RejectCall(ctx context.Context, callID, userID string) (calls.CallSession, error)
	MarkCallConnected(ctx context.Context, callID, userID string) (calls.CallSession, bool, error)
	EndCall(ctx context.Context, callID string, reason calls.EndReason, requestingUserID string) (calls.CallSession, bool, error)
	RejoinCall(ctx context.Context, callID, userID string) (calls.CallSession, int, error)
	GetActiveCallForUser(ctx context.Context, userID string) (calls.CallSession, bool, error)
	GetCall(ctx context.Context, callID string) (calls.CallSession, error)
}

// Enqueuer accepts push notifications for offline delivery.
type Enqueuer interface {
	Enqueue(n notify.Notification) bool
}

// Relay implements realtime.Dispatcher.
type Relay struct {
	engine Engine
	pub    realtime.Publisher
	issuer media.Issuer
	push   Enqueuer
	log    *slog.Logger
}

func NewRelay(engine Engine, pub realtime.Publisher, issuer media.Issuer, push Enqueuer, log *slog.Logger) *Relay {
	if issuer == nil {
		issuer = media.Disabled{}
	}
	return &Relay{engine: engine, pub: pub, issuer: issuer, push: push, log: logger.OrDefault(log)}
}

func (r *Relay) HandleEvent(ctx context.Context, userID string, in realtime.Inbound) {
	switch in.Op {
	case OpCallRequest:
		r.handleRequest(ctx, userID, in)
	case OpCallAccept:
		r.withCallRef(userID, in, func(id string) { r.handleAccept(ctx, userID, id) })
	case OpCallReject:
		r.withCallRef(userID, in, func(id string) { r.handleReject(ctx, userID, id) })
	case OpCallConnected:
		r.withCallRef(userID, in, func(id string) { r.handleConnected(ctx, userID, id) })
	case OpCallEnd:
		r.withCallRef(userID, in, func(id string) { r.handleEnd(ctx, userID, id, "") })
	case OpCallConnectionFailed:
		r.withCallRef(userID, in, func(id string) { r.handleEnd(ctx, userID, id, calls.EndReasonConnectionFailed) })
	case OpCallRejoin:
		r.withCallRef(userID, in, func(id string) { r.handleRejoin(ctx, userID, id) })
	case OpWebRTCOffer, OpWebRTCAnswer, OpWebRTCICECandidate:
		r.handleWebRTC(ctx, userID, in)
	default:
		r.log.Debug("unknown op", "user_id", userID, "op", in.Op)
	}
}

// HandleDisconnect ends the user's live call, if any, when their last connection closes.
func (r *Relay) HandleDisconnect(ctx context.Context, userID string) {
	sess, found, err := r.engine.GetActiveCallForUser(ctx, userID)
	if err != nil {
		r.log.Error("active call lookup failed", "user_id", userID, "err", err)
		return
	}
	if !found {
		return
	}
	ended, transitioned, err := r.engine.EndCall(ctx, sess.ID, calls.DisconnectEndReason(sess, userID), userID)
	if err != nil {
		r.log.Error("end call on disconnect failed", "call_id", sess.ID, "user_id", userID, "err", err)
		return
	}
	if transitioned {
		r.emit(ended.Peer(userID), OpCallEnded, endedBody(ended))
	}
}

// OnServerEnd reports calls ended by a timer or the reconcile sweep.
func (r *Relay) OnServerEnd(sess calls.CallSession) {
	switch sess.EndReason {
	case calls.EndReasonMissed:
		r.emit(sess.CallerID, OpCallMissed, callRef{CallID: sess.ID})
		r.emit(sess.ReceiverID, OpCallEnded, endedBody(sess))
		r.enqueuePush(notify.Notification{UserID: sess.ReceiverID, Kind: notify.KindMissedCall, CallID: sess.ID, FromID: sess.CallerID})
	case calls.EndReasonTimerExpired:
		body := forceEndPayload{CallID: sess.ID, Reason: string(sess.EndReason)}
		r.emit(sess.CallerID, OpCallForceEnd, body)
		r.emit(sess.ReceiverID, OpCallForceEnd, body)
	default:
		r.emitBoth(sess, OpCallEnded, endedBody(sess))
	}
}

func (r *Relay) handleRequest(ctx context.Context, userID string, in realtime.Inbound) {
	req, err := realtime.Decode[requestPayload](in)
	if err != nil || req.ReceiverID == "" {
		r.fail(userID, "", calls.ErrInvalidArgument)
		return
	}
	if !r.issuer.Enabled() {
		r.fail(userID, "", media.ErrUnavailable)
		return
	}

	sess, err := r.engine.InitiateCall(ctx, userID, req.ReceiverID, req.ChatID)
	if err != nil {
		r.fail(userID, "", err)
		return
	}

	body := ringPayload{
		CallID:             sess.ID,
		CallerID:           sess.CallerID,
		ReceiverID:         sess.ReceiverID,
		ChatID:             sess.ChatID,
		CoinAmount:         sess.CoinAmount,
		Duration:           sess.CallDurationSeconds,
		RingTimeoutSeconds: sess.RingTimeoutSeconds,
	}
	r.emit(sess.CallerID, OpCallOutgoing, body)
	if !r.emit(sess.ReceiverID, OpCallIncoming, body) {
		r.enqueuePush(notify.Notification{UserID: sess.ReceiverID, Kind: notify.KindIncomingCall, CallID: sess.ID, FromID: sess.CallerID})
	}
}

// handleAccept mints both tokens before committing, so a token failure leaves the call ringing.
func (r *Relay) handleAccept(ctx context.Context, userID, callID string) {
	sess, err := r.engine.GetCall(ctx, callID)
	if err != nil {
		r.fail(userID, callID, err)
		return
	}
	if sess.ReceiverID != userID {
		if sess.CallerID == userID {
			r.fail(userID, callID, fmt.Errorf("%w: caller cannot accept", calls.ErrInvalidState))
		} else {
			r.fail(userID, callID, calls.ErrNotParticipant)
		}
		return
	}

	callerTok, err := r.issuer.Issue(sess.ID, sess.CallerID)
	if err != nil {
		r.failToken(userID, callID, err)
		return
	}
	receiverTok, err := r.issuer.Issue(sess.ID, sess.ReceiverID)
	if err != nil {
		r.failToken(userID, callID, err)
		return
	}

	sess, err = r.engine.AcceptCall(ctx, callID, userID)
	if err != nil {
		r.fail(userID, callID, err)
		return
	}
	r.emit(sess.CallerID, OpCallAccepted, mediaPayload{CallID: sess.ID, Media: callerTok})
	r.emit(sess.ReceiverID, OpCallProceed, mediaPayload{CallID: sess.ID, Media: receiverTok})
}

func (r *Relay) handleReject(ctx context.Context, userID, callID string) {
	sess, err := r.engine.RejectCall(ctx, callID, userID)
	if err != nil {
		r.fail(userID, callID, err)
		return
	}
	r.emit(sess.CallerID, OpCallRejected, rejectedPayload{CallID: sess.ID, Refunded: sess.BillingStatus == calls.BillingRefunded})
	r.emit(sess.ReceiverID, OpCallEnded, endedBody(sess))
}

func (r *Relay) handleConnected(ctx context.Context, userID, callID string) {
	sess, first, err := r.engine.MarkCallConnected(ctx, callID, userID)
	if err != nil {
		r.fail(userID, callID, err)
		return
	}
	body := startedPayload{
		CallID:    sess.ID,
		Duration:  sess.CallDurationSeconds,
		StartTime: *sess.ConnectedAt,
		EndTime:   sess.Deadline(),
	}
	if first {
		r.emitBoth(sess, OpCallStarted, body)
		return
	}
	// Both sides report connected; the second report only resyncs its sender.
	r.emit(userID, OpCallStarted, body)
}

// handleEnd ends the call with reason, or with the actor's own reason when empty.
func (r *Relay) handleEnd(ctx context.Context, userID, callID string, reason calls.EndReason) {
	if reason == "" {
		sess, err := r.engine.GetCall(ctx, callID)
		switch {
		case err == nil:
			reason = calls.ActorEndReason(sess, userID)
		case errors.Is(err, calls.ErrNotFound):
			r.emit(userID, OpCallEnded, endedPayload{CallID: callID, Reason: string(calls.EndReasonNotFound)})
			return
		default:
			r.fail(userID, callID, err)
			return
		}
	}

	sess, transitioned, err := r.engine.EndCall(ctx, callID, reason, userID)
	if err != nil {
		r.fail(userID, callID, err)
		return
	}
	if !transitioned {
		// Already ended or unknown: acknowledge with the terminal record.
		r.emit(userID, OpCallEnded, endedBody(sess))
		return
	}
	r.emitBoth(sess, OpCallEnded, endedBody(sess))
}

func (r *Relay) handleRejoin(ctx context.Context, userID, callID string) {
	sess, remaining, err := r.engine.RejoinCall(ctx, callID, userID)
	if errors.Is(err, calls.ErrNotFound) {
		r.emit(userID, OpCallEnded, endedPayload{CallID: callID, Reason: string(calls.EndReasonNotFound)})
		return
	}
	if err != nil {
		r.fail(userID, callID, err)
		return
	}
	tok, err := r.issuer.Issue(sess.ID, userID)
	if err != nil {
		r.failToken(userID, callID, err)
		return
	}
	r.emit(userID, OpCallRejoinResume, rejoinPayload{CallID: sess.ID, RemainingSeconds: remaining, Media: tok})
}

// handleWebRTC forwards the blob to the peer without looking inside it.
func (r *Relay) handleWebRTC(ctx context.Context, userID string, in realtime.Inbound) {
	msg, err := realtime.Decode[webrtcPayload](in)
	if err != nil || msg.CallID == "" || msg.TargetUserID == "" {
		r.fail(userID, msg.CallID, calls.ErrInvalidArgument)
		return
	}
	sess, err := r.engine.GetCall(ctx, msg.CallID)
	if err != nil {
		r.fail(userID, msg.CallID, err)
		return
	}
	if !sess.IsParticipant(userID) || sess.Peer(userID) != msg.TargetUserID {
		r.fail(userID, msg.CallID, calls.ErrNotParticipant)
		return
	}
	if sess.Ended() {
		r.fail(userID, msg.CallID, calls.ErrInvalidState)
		return
	}
	msg.FromUserID = userID
	r.emit(msg.TargetUserID, in.Op, msg)
}

func (r *Relay) withCallRef(userID string, in realtime.Inbound, fn func(callID string)) {
	ref, err := realtime.Decode[callRef](in)
	if err != nil || ref.CallID == "" {
		r.fail(userID, "", calls.ErrInvalidArgument)
		return
	}
	fn(ref.CallID)
}

func (r *Relay) emit(userID, op string, body any) bool {
	return r.pub.SendToUser(userID, realtime.Event{Op: op, Data: body})
}

func (r *Relay) emitBoth(sess calls.CallSession, op string, body any) {
	r.emit(sess.CallerID, op, body)
	r.emit(sess.ReceiverID, op, body)
}

func (r *Relay) fail(userID, callID string, err error) {
	p := errorFor(callID, err)
	switch p.Code {
	case CodeInternal:
		r.log.Error("call operation failed", "user_id", userID, "call_id", callID, "err", err)
	case CodeUnavailable:
		r.log.Warn("call operation unavailable", "user_id", userID, "call_id", callID, "err", err)
	default:
		r.log.Debug("call operation rejected", "user_id", userID, "call_id", callID, "code", p.Code, "err", err)
	}
	r.emit(userID, OpCallError, p)
}

func (r *Relay) failToken(userID, callID string, err error) {
	p := errorFor(callID, err)
	if p.Code == CodeInternal {
		p.Code, p.Message, p.FundsAffected = CodeTokenFailed, "could not issue media credentials", false
	}
	r.log.Error("media token failed", "user_id", userID, "call_id", callID, "err", err)
	r.emit(userID, OpCallError, p)
}

func (r *Relay) enqueuePush(n notify.Notification) {
	if r.push == nil {
		return
	}
	r.push.Enqueue(n)
}

func endedBody(sess calls.CallSession) endedPayload {
	return endedPayload{
		CallID:   sess.ID,
		Reason:   string(sess.EndReason),
		Duration: sess.ConnectedSeconds(),
		Refunded: sess.BillingStatus == calls.BillingRefunded,
		EndedBy:  sess.EndedBy,
	}
}
