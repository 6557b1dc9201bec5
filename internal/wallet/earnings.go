package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"dating-platform/pkg/logger"
)

// BatchCrediter persists receiver credits, in bulk or one at a time.
type BatchCrediter interface {
	CreditBatch(ctx context.Context, ps []Posting) error
	Credit(ctx context.Context, p Posting) (Balance, error)
}

// EarningsBuffer collects receiver credits and writes them in batches.
//
// When a batch write fails, its postings are retried one by one. Postings that
// fail for a temporary reason go back to the front of the buffer; ledger
// idempotency keys make that safe. Postings that can never succeed are handed
// to the dead-letter hook and dropped, so they cannot hold up other receivers.
type EarningsBuffer struct {
	mu      sync.Mutex
	pending []Posting
	store   BatchCrediter
	log     *slog.Logger

	deadMu     sync.RWMutex
	deadLetter func(ctx context.Context, p Posting, err error)
}

func NewEarningsBuffer(store BatchCrediter, log *slog.Logger) *EarningsBuffer {
	return &EarningsBuffer{store: store, log: logger.OrDefault(log)}
}

// OnDeadLetter registers fn to run for every credit dropped as unpayable.
func (b *EarningsBuffer) OnDeadLetter(fn func(ctx context.Context, p Posting, err error)) {
	b.deadMu.Lock()
	defer b.deadMu.Unlock()
	b.deadLetter = fn
}

// Add queues a credit. It never blocks on storage.
func (b *EarningsBuffer) Add(p Posting) {
	if p.Type == "" {
		p.Type = LedgerEntryTypeCallEarning
	}
	b.mu.Lock()
	b.pending = append(b.pending, p)
	b.mu.Unlock()
}

// Len returns the number of queued credits.
func (b *EarningsBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush writes everything queued so far and returns how many credits were written.
// A non-nil error means some credits are still queued for the next flush.
func (b *EarningsBuffer) Flush(ctx context.Context) (int, error) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}
	batchErr := b.store.CreditBatch(ctx, batch)
	if batchErr == nil {
		b.log.Debug("earnings flushed", "count", len(batch))
		return len(batch), nil
	}
	b.log.Warn("earnings batch failed, crediting one by one", "pending", len(batch), "err", batchErr)

	var (
		credited int
		retry    []Posting
		lastErr  error
	)
	for _, p := range batch {
		if _, err := b.store.Credit(ctx, p); err != nil {
			if isPermanent(err) {
				b.drop(ctx, p, err)
				continue
			}
			retry = append(retry, p)
			lastErr = err
			continue
		}
		credited++
	}
	if len(retry) > 0 {
		b.mu.Lock()
		b.pending = append(retry, b.pending...)
		b.mu.Unlock()
		b.log.Warn("earnings flush incomplete", "credited", credited, "requeued", len(retry), "err", lastErr)
		return credited, fmt.Errorf("earnings flush: %d credits requeued: %w", len(retry), lastErr)
	}
	b.log.Debug("earnings flushed", "count", credited)
	return credited, nil
}

func (b *EarningsBuffer) drop(ctx context.Context, p Posting, err error) {
	b.log.Error("earnings credit dropped",
		"user_id", p.UserID,
		"call_id", p.ExternalRef,
		"coins", p.Amount,
		"idempotency_key", p.IdempotencyKey,
		"err", err,
	)
	b.deadMu.RLock()
	fn := b.deadLetter
	b.deadMu.RUnlock()
	if fn != nil {
		fn(ctx, p, err)
	}
}

// isPermanent reports whether retrying a credit can never succeed.
func isPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidArgument)
}
