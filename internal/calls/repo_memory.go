package calls

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory ledger for tests and local runs.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]CallSession
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]CallSession{}}
}

func (r *MemoryRepo) Create(_ context.Context, s CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[s.ID]; ok {
		return ErrDuplicate
	}
	r.rows[s.ID] = s
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) Transition(_ context.Context, next CallSession, from ...Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[next.ID]
	if !ok || !slices.Contains(from, cur.Status) {
		return false, nil
	}
	r.rows[next.ID] = next
	return true, nil
}

func (r *MemoryRepo) FindActiveForUser(_ context.Context, userID string) (CallSession, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best CallSession
	found := false
	for _, s := range r.rows {
		if s.Ended() || !s.IsParticipant(userID) {
			continue
		}
		if !found || s.CreatedAt.After(best.CreatedAt) {
			best = s
			found = true
		}
	}
	return best, found, nil
}

func (r *MemoryRepo) ListActive(_ context.Context) ([]CallSession, error) {
	return r.filter(func(s CallSession) bool { return !s.Ended() }), nil
}

func (r *MemoryRepo) ListCreatedBetween(_ context.Context, from, to time.Time) ([]CallSession, error) {
	return r.filter(func(s CallSession) bool {
		return !s.CreatedAt.Before(from) && s.CreatedAt.Before(to)
	}), nil
}

func (r *MemoryRepo) filter(keep func(CallSession) bool) []CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallSession
	for _, s := range r.rows {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
