package wallet

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("wallet: user not found")
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrInvalidArgument   = errors.New("wallet: invalid argument")
)

// CoinStore is the user/wallet collaborator of the call engine.
//
// Money invariants:
// - every balance change has exactly one ledger entry
// - postings are idempotent on IdempotencyKey
// - balance changes are atomic increments/decrements in storage, never read-modify-write
type CoinStore interface {
	Balance(ctx context.Context, userID string) (Balance, error)
	Debit(ctx context.Context, p Posting) (Balance, error)
	Credit(ctx context.Context, p Posting) (Balance, error)
	CreditBatch(ctx context.Context, ps []Posting) error
}

// CallLockKey, CallRefundKey and CallEarningKey name the one-per-call postings.
func CallLockKey(callID string) string    { return "call:" + callID + ":lock" }
func CallRefundKey(callID string) string  { return "call:" + callID + ":refund" }
func CallEarningKey(callID string) string { return "call:" + callID + ":earning" }

func validatePosting(p Posting) error {
	if p.UserID == "" || p.IdempotencyKey == "" || p.Type == "" {
		return ErrInvalidArgument
	}
	if p.Amount <= 0 {
		return ErrInvalidArgument
	}
	return nil
}

var errStoreUnavailable = errors.New("wallet: store unavailable")
