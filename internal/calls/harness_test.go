package calls

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"dating-platform/internal/audit"
	"dating-platform/internal/pricing"
	"dating-platform/internal/wallet"
	"dating-platform/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type manualTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

// manualScheduler fires timers only when the test advances the clock.
type manualScheduler struct {
	mu     sync.Mutex
	clock  *fakeClock
	timers []*manualTimer
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{at: m.clock.Now().Add(d), f: f}
	m.timers = append(m.timers, t)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

// Advance moves the clock forward and runs due timers in deadline order.
func (m *manualScheduler) Advance(d time.Duration) {
	target := m.clock.Now().Add(d)
	for {
		m.mu.Lock()
		var due []*manualTimer
		for _, t := range m.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		if len(due) == 0 {
			m.mu.Unlock()
			m.clock.set(target)
			return
		}
		next := due[0]
		next.fired = true
		m.mu.Unlock()

		m.clock.set(next.at)
		next.f()
	}
}

// FireStopped runs callbacks of timers that were stopped, as a timer that was
// already executing when cancelled would.
func (m *manualScheduler) FireStopped() {
	m.mu.Lock()
	var stale []*manualTimer
	for _, t := range m.timers {
		if t.stopped && !t.fired {
			t.fired = true
			stale = append(stale, t)
		}
	}
	m.mu.Unlock()
	for _, t := range stale {
		t.f()
	}
}

func (m *manualScheduler) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

const (
	testPrice    = 50
	testDuration = 300
	testRing     = 30
)

type harness struct {
	svc      *Service
	repo     *MemoryRepo
	store    *wallet.MemoryStore
	earnings *wallet.EarningsBuffer
	audit    *audit.MemoryRepo
	clock    *fakeClock
	sched    *manualScheduler

	mu          sync.Mutex
	serverEnded []CallSession
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)}
	store := wallet.NewMemoryStore()
	store.SetBalance("alice", 100)
	store.SetBalance("bob", 0)
	store.SetBalance("carol", 100)
	h := &harness{
		repo:  NewMemoryRepo(),
		store: store,
		audit: audit.NewMemoryRepo(),
		clock: clock,
		sched: &manualScheduler{clock: clock},
	}
	h.earnings = wallet.NewEarningsBuffer(store, logger.Nop())
	h.svc = h.newService()
	return h
}

// newService builds a second service over the same storage, as after a restart.
func (h *harness) newService() *Service {
	svc := NewService(Options{
		Repo:     h.repo,
		Wallet:   h.store,
		Earnings: h.earnings,
		Pricer: pricing.NewService(nil, pricing.Quote{
			CoinAmount:         testPrice,
			DurationSeconds:    testDuration,
			RingTimeoutSeconds: testRing,
		}),
		Guard:       NewMemoryGuard(1),
		Audit:       audit.NewService(h.audit, logger.Nop()),
		Logger:      logger.Nop(),
		Scheduler:   h.sched,
		Clock:       h.clock.Now,
		AcceptGrace: time.Minute,
	})
	svc.OnServerEnd(func(s CallSession) {
		h.mu.Lock()
		h.serverEnded = append(h.serverEnded, s)
		h.mu.Unlock()
	})
	return svc
}

func (h *harness) coins(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := h.store.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance %s: %v", userID, err)
	}
	return b.Coins
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	if _, err := h.earnings.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func (h *harness) ended() []CallSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]CallSession, len(h.serverEnded))
	copy(out, h.serverEnded)
	return out
}

// connected drives alice -> bob to connected.
func (h *harness) connected(t *testing.T) CallSession {
	t.Helper()
	ctx := context.Background()
	s, err := h.svc.InitiateCall(ctx, "alice", "bob", "chat1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := h.svc.AcceptCall(ctx, s.ID, "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	s, _, err = h.svc.MarkCallConnected(ctx, s.ID, "alice")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s
}
