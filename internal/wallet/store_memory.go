package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process CoinStore used for tests and local runs without Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	coins   map[string]int64
	applied map[string]struct{}
	ledger  []LedgerEntry
	clock   func() time.Time

	// FailWrites makes Credit and CreditBatch fail while > 0, decrementing on each call.
	FailWrites int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		coins:   map[string]int64{},
		applied: map[string]struct{}{},
		clock:   time.Now,
	}
}

// SetBalance creates the user if needed and overwrites the balance.
func (m *MemoryStore) SetBalance(userID string, coins int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coins[userID] = coins
}

func (m *MemoryStore) Balance(_ context.Context, userID string) (Balance, error) {
	if userID == "" {
		return Balance{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coins[userID]
	if !ok {
		return Balance{}, ErrNotFound
	}
	return Balance{UserID: userID, Coins: c, UpdatedAt: m.clock().UTC()}, nil
}

func (m *MemoryStore) Debit(ctx context.Context, p Posting) (Balance, error) {
	if err := validatePosting(p); err != nil {
		return Balance{}, err
	}
	p.Type = LedgerEntryTypeCallLock
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(p)
}

func (m *MemoryStore) Credit(ctx context.Context, p Posting) (Balance, error) {
	if err := validatePosting(p); err != nil {
		return Balance{}, err
	}
	if p.Type == LedgerEntryTypeCallLock {
		return Balance{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites > 0 {
		m.FailWrites--
		return Balance{}, errStoreUnavailable
	}
	return m.applyLocked(p)
}

// CreditBatch applies all postings or none of them.
func (m *MemoryStore) CreditBatch(ctx context.Context, ps []Posting) error {
	for _, p := range ps {
		if err := validatePosting(p); err != nil {
			return err
		}
		if p.Type == LedgerEntryTypeCallLock {
			return ErrInvalidArgument
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites > 0 {
		m.FailWrites--
		return errStoreUnavailable
	}
	// Credits only add coins, so a missing user is the one way a posting can fail.
	for _, p := range ps {
		if _, ok := m.coins[p.UserID]; !ok {
			return ErrNotFound
		}
	}
	for _, p := range ps {
		if _, err := m.applyLocked(p); err != nil {
			return err
		}
	}
	return nil
}

// Ledger returns a copy of all applied entries in order.
func (m *MemoryStore) Ledger() []LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LedgerEntry, len(m.ledger))
	copy(out, m.ledger)
	return out
}

func (m *MemoryStore) applyLocked(p Posting) (Balance, error) {
	now := m.clock().UTC()
	cur, ok := m.coins[p.UserID]
	if !ok {
		return Balance{}, ErrNotFound
	}
	if _, dup := m.applied[p.IdempotencyKey]; dup {
		return Balance{UserID: p.UserID, Coins: cur, UpdatedAt: now}, nil
	}
	delta := p.signedAmount()
	if cur+delta < 0 {
		return Balance{}, ErrInsufficientFunds
	}
	m.coins[p.UserID] = cur + delta
	m.applied[p.IdempotencyKey] = struct{}{}
	m.ledger = append(m.ledger, LedgerEntry{
		ID:             uuid.NewString(),
		UserID:         p.UserID,
		Type:           p.Type,
		Amount:         delta,
		ExternalRef:    p.ExternalRef,
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      now,
	})
	return Balance{UserID: p.UserID, Coins: cur + delta, UpdatedAt: now}, nil
}

func (m *MemoryStore) LedgerForCall(_ context.Context, callID string) ([]LedgerEntry, error) {
	if callID == "" {
		return nil, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LedgerEntry
	for _, e := range m.ledger {
		if e.ExternalRef == callID {
			out = append(out, e)
		}
	}
	return out, nil
}
