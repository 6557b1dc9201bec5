package wallet

import (
	"context"
	"database/sql"
	"time"

	"dating-platform/pkg/utils"

	"github.com/google/uuid"
)

// PostgresStore is the CoinStore backed by the users and coin_ledger tables.
// Every posting runs in one transaction: ledger insert (deduplicated on key) then balance delta.
type PostgresStore struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Balance(ctx context.Context, userID string) (Balance, error) {
	if userID == "" {
		return Balance{}, ErrInvalidArgument
	}
	return getBalance(ctx, s.db, userID)
}

func (s *PostgresStore) Debit(ctx context.Context, p Posting) (Balance, error) {
	if err := validatePosting(p); err != nil {
		return Balance{}, err
	}
	p.Type = LedgerEntryTypeCallLock
	return s.post(ctx, p)
}

func (s *PostgresStore) Credit(ctx context.Context, p Posting) (Balance, error) {
	if err := validatePosting(p); err != nil {
		return Balance{}, err
	}
	if p.Type == LedgerEntryTypeCallLock {
		return Balance{}, ErrInvalidArgument
	}
	return s.post(ctx, p)
}

// CreditBatch applies all postings in a single transaction.
// Postings whose key was already applied are skipped, so a retried batch is safe.
func (s *PostgresStore) CreditBatch(ctx context.Context, ps []Posting) error {
	if len(ps) == 0 {
		return nil
	}
	for _, p := range ps {
		if err := validatePosting(p); err != nil {
			return err
		}
		if p.Type == LedgerEntryTypeCallLock {
			return ErrInvalidArgument
		}
	}
	now := s.clock().UTC()
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		for _, p := range ps {
			if _, err := s.postTx(ctx, tx, p, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// LedgerForCall lists every coin movement recorded against a call.
func (s *PostgresStore) LedgerForCall(ctx context.Context, callID string) ([]LedgerEntry, error) {
	if callID == "" {
		return nil, ErrInvalidArgument
	}
	return listLedgerByRef(ctx, s.db, callID)
}

func (s *PostgresStore) post(ctx context.Context, p Posting) (Balance, error) {
	now := s.clock().UTC()
	var out Balance
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		b, err := s.postTx(ctx, tx, p, now)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (s *PostgresStore) postTx(ctx context.Context, tx *sql.Tx, p Posting, now time.Time) (Balance, error) {
	entry := LedgerEntry{
		ID:             uuid.NewString(),
		UserID:         p.UserID,
		Type:           p.Type,
		Amount:         p.signedAmount(),
		ExternalRef:    p.ExternalRef,
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      now,
	}
	inserted, err := insertLedgerOnce(ctx, tx, entry)
	if err != nil {
		return Balance{}, err
	}
	if !inserted {
		// Already applied.
		return getBalance(ctx, tx, p.UserID)
	}
	return applyCoinDelta(ctx, tx, p.UserID, entry.Amount, now)
}
