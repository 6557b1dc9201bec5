package calls

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTimerRegistry_RescheduleInvalidatesOldGeneration(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sched := &manualScheduler{clock: clock}
	reg := newTimerRegistry(sched)

	var fired []uint64
	fire := func(gen uint64) {
		if reg.isCurrent("c1", timerDuration, gen) {
			fired = append(fired, gen)
		}
	}
	g1 := reg.schedule("c1", timerDuration, 10*time.Second, fire)
	g2 := reg.schedule("c1", timerDuration, 5*time.Second, fire)
	if g1 == g2 {
		t.Fatalf("expected new generation")
	}
	if sched.pending() != 1 {
		t.Fatalf("expected old timer stopped, pending=%d", sched.pending())
	}

	sched.FireStopped()
	if len(fired) != 0 {
		t.Fatalf("stale generation must not act, fired=%v", fired)
	}
	sched.Advance(5 * time.Second)
	if len(fired) != 1 || fired[0] != g2 {
		t.Fatalf("expected only current generation to fire, got %v", fired)
	}
}

func TestTimerRegistry_KindsAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sched := &manualScheduler{clock: clock}
	reg := newTimerRegistry(sched)

	reg.schedule("c1", timerRing, time.Second, func(uint64) {})
	reg.schedule("c1", timerDuration, time.Second, func(uint64) {})
	reg.cancel("c1", timerRing)
	if reg.has("c1", timerRing) || !reg.has("c1", timerDuration) {
		t.Fatalf("cancel must only touch its kind")
	}
	reg.stopAll()
	if sched.pending() != 0 || reg.has("c1", timerDuration) {
		t.Fatalf("stopAll must clear everything")
	}
}

func TestKeyedMutex_SerialisesPerKeyAndCleansUp(t *testing.T) {
	km := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("c1")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("expected 50, got %d", counter)
	}
	if km.size() != 0 {
		t.Fatalf("expected no retained entries, got %d", km.size())
	}
}

func TestMemoryGuard_Limit(t *testing.T) {
	g := NewMemoryGuard(1)
	ok, _ := g.Acquire(context.Background(), "alice", "c1")
	if !ok {
		t.Fatalf("first acquire should succeed")
	}
	if ok, _ := g.Acquire(context.Background(), "alice", "c1"); !ok {
		t.Fatalf("re-acquire for the same call should succeed")
	}
	if ok, _ := g.Acquire(context.Background(), "alice", "c2"); ok {
		t.Fatalf("second call should be refused")
	}
	_ = g.Release(context.Background(), "alice", "c1")
	if g.Held("alice") != 0 {
		t.Fatalf("expected slot released")
	}
}
