package pricing

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
type MemoryRepo struct {
	mu   sync.RWMutex
	Rows []CallSettings
}

func (r *MemoryRepo) Add(s CallSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Rows = append(r.Rows, s)
}

func (r *MemoryRepo) FindCallSettings(ctx context.Context, at time.Time) (CallSettings, bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Prefer the most recent effective row.
	var best CallSettings
	found := false
	for _, s := range r.Rows {
		if !s.effectiveAt(at) {
			continue
		}
		if !found || s.EffectiveFrom.After(best.EffectiveFrom) {
			best = s
			found = true
		}
	}
	return best, found, nil
}
