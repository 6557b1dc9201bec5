package calls

import (
	"context"
	"sync"
	"time"

	"dating-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// ParticipantGuard enforces the per-user cap on live calls.
// Acquire is atomic per user; Release must be called once for every successful Acquire.
type ParticipantGuard interface {
	Acquire(ctx context.Context, userID, callID string) (bool, error)
	Release(ctx context.Context, userID, callID string) error
}

// MemoryGuard is a process-local guard allowing limit live calls per user.
type MemoryGuard struct {
	mu    sync.Mutex
	limit int
	held  map[string]map[string]struct{}
}

func NewMemoryGuard(limit int) *MemoryGuard {
	if limit <= 0 {
		limit = 1
	}
	return &MemoryGuard{limit: limit, held: map[string]map[string]struct{}{}}
}

func (g *MemoryGuard) Acquire(_ context.Context, userID, callID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	calls := g.held[userID]
	if _, ok := calls[callID]; ok {
		return true, nil
	}
	if len(calls) >= g.limit {
		return false, nil
	}
	if calls == nil {
		calls = map[string]struct{}{}
		g.held[userID] = calls
	}
	calls[callID] = struct{}{}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, userID, callID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	calls := g.held[userID]
	delete(calls, callID)
	if len(calls) == 0 {
		delete(g.held, userID)
	}
	return nil
}

// Held returns the number of live calls held for userID.
func (g *MemoryGuard) Held(userID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held[userID])
}

// RedisGuard shares the cap across processes using the Lua concurrency-cap scripts.
// The TTL bounds how long a slot survives a crashed process.
type RedisGuard struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisGuard(rdb *redis.Client, limit int, ttl time.Duration) *RedisGuard {
	if limit <= 0 {
		limit = 1
	}
	return &RedisGuard{rdb: rdb, limit: limit, ttl: ttl}
}

func guardKey(userID string) string { return "calls:active:" + userID }

func (g *RedisGuard) Acquire(ctx context.Context, userID, _ string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, g.rdb, guardKey(userID), g.limit, g.ttl)
}

func (g *RedisGuard) Release(ctx context.Context, userID, _ string) error {
	return utils.ReleaseConcurrencyCap(ctx, g.rdb, guardKey(userID))
}
