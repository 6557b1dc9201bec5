package signaling

import (
	"errors"

	"dating-platform/internal/calls"
	"dating-platform/internal/media"
)

const (
	CodeInvalidArgument   = "invalid_argument"
	CodeSelfCall          = "self_call"
	CodeBusy              = "busy"
	CodeInsufficientFunds = "insufficient_funds"
	CodeNotFound          = "not_found"
	CodeInvalidState      = "invalid_state"
	CodeNotParticipant    = "not_participant"
	CodeCallExpired       = "call_expired"
	CodeVideoUnavailable  = "video_unavailable"
	CodeTokenFailed       = "token_failed"
	CodeUnavailable       = "unavailable"
	CodeInternal          = "internal"
)

// errorFor maps an operation error to the call:error body. Order matters:
// an expired rejoin wraps both ErrInvalidState and ErrCallExpired.
func errorFor(callID string, err error) ErrorPayload {
	p := ErrorPayload{CallID: callID}
	switch {
	case errors.Is(err, calls.ErrCallExpired):
		p.Code, p.Message = CodeCallExpired, "call time has run out"
	case errors.Is(err, calls.ErrInsufficientFunds):
		p.Code, p.Message = CodeInsufficientFunds, "not enough coins for this call"
	case errors.Is(err, calls.ErrSelfCall):
		p.Code, p.Message = CodeSelfCall, "you cannot call yourself"
	case errors.Is(err, calls.ErrBusy):
		p.Code, p.Message = CodeBusy, "user is already in a call"
	case errors.Is(err, calls.ErrNotFound):
		p.Code, p.Message = CodeNotFound, "call not found"
	case errors.Is(err, calls.ErrNotParticipant):
		p.Code, p.Message = CodeNotParticipant, "you are not part of this call"
	case errors.Is(err, calls.ErrInvalidState):
		p.Code, p.Message = CodeInvalidState, "call is not in a state that allows this"
	case errors.Is(err, calls.ErrInvalidArgument):
		p.Code, p.Message = CodeInvalidArgument, "invalid request"
	case errors.Is(err, media.ErrUnavailable), errors.Is(err, media.ErrNotConfigured):
		p.Code, p.Message = CodeVideoUnavailable, "video calling is unavailable"
	case errors.Is(err, calls.ErrUnavailable):
		p.Code, p.Message = CodeUnavailable, "calling is temporarily unavailable, try again"
	default:
		// Unknown failures may have happened after coins moved.
		p.Code, p.Message, p.FundsAffected = CodeInternal, "something went wrong", true
	}
	return p
}
