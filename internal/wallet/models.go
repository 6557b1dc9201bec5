package wallet

import "time"

// Balance is the coin balance of one user.
// The coins column is only ever changed by a single conditional UPDATE next to a ledger insert.
type Balance struct {
	UserID    string    `json:"user_id" db:"id"`
	Coins     int64     `json:"coins" db:"coins"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is an immutable append-only coin movement.
// Amount is signed: credits positive, debits negative.
type LedgerEntry struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	Type           LedgerEntryType `json:"type" db:"type"`
	Amount         int64           `json:"amount" db:"amount"`
	ExternalRef    string          `json:"external_ref,omitempty" db:"external_ref"`
	IdempotencyKey string          `json:"idempotency_key" db:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

type LedgerEntryType string

const (
	LedgerEntryTypeCallLock    LedgerEntryType = "call_lock"    // caller debit at request time
	LedgerEntryTypeCallRefund  LedgerEntryType = "call_refund"  // lock reversed, call never connected
	LedgerEntryTypeCallEarning LedgerEntryType = "call_earning" // receiver credit for a connected call
	LedgerEntryTypeAdjustment  LedgerEntryType = "adjustment"
)

// Posting is a request to move coins for one user.
// IdempotencyKey is unique across the ledger; a repeated key is a no-op.
type Posting struct {
	UserID         string
	Amount         int64
	Type           LedgerEntryType
	ExternalRef    string
	IdempotencyKey string
}

func (p Posting) signedAmount() int64 {
	if p.Type == LedgerEntryTypeCallLock {
		return -p.Amount
	}
	return p.Amount
}
