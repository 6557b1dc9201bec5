package calls

import (
	"errors"

	"dating-platform/internal/wallet"
)

var (
	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrSelfCall        = errors.New("calls: cannot call yourself")
	ErrBusy            = errors.New("calls: participant already in a call")
	ErrNotFound        = errors.New("calls: call not found")
	ErrInvalidState    = errors.New("calls: invalid call state")
	ErrNotParticipant  = errors.New("calls: not a participant")
	ErrCallExpired     = errors.New("calls: call time has run out")
	ErrDuplicate       = errors.New("calls: duplicate session")

	// ErrUnavailable wraps dependency failures hit before any coins were locked.
	ErrUnavailable = errors.New("calls: temporarily unavailable")

	// ErrInsufficientFunds is the wallet error, so errors.Is works on either name.
	ErrInsufficientFunds = wallet.ErrInsufficientFunds
)
