package calls

import (
	"sync"
	"time"
)

type timerKind string

const (
	timerRing     timerKind = "ring"
	timerDuration timerKind = "duration"
)

// Scheduler runs f after d. The returned stop func reports whether it prevented the run.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type timerKey struct {
	callID string
	kind   timerKind
}

type timerEntry struct {
	gen  uint64
	stop func() bool
}

// timerRegistry holds at most one timer per (call, kind).
// Every schedule bumps a generation; a firing timer must present the generation
// it was created with, so a timer that was cancelled but already running is ignored.
type timerRegistry struct {
	mu      sync.Mutex
	sched   Scheduler
	nextGen uint64
	entries map[timerKey]timerEntry
}

func newTimerRegistry(s Scheduler) *timerRegistry {
	if s == nil {
		s = realScheduler{}
	}
	return &timerRegistry{sched: s, entries: map[timerKey]timerEntry{}}
}

// schedule cancels any existing timer for (callID, kind) and arms a new one.
// fire receives the generation to check with isCurrent.
func (r *timerRegistry) schedule(callID string, kind timerKind, d time.Duration, fire func(gen uint64)) uint64 {
	if d < 0 {
		d = 0
	}
	key := timerKey{callID, kind}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[key]; ok {
		old.stop()
	}
	r.nextGen++
	gen := r.nextGen
	stop := r.sched.AfterFunc(d, func() { fire(gen) })
	r.entries[key] = timerEntry{gen: gen, stop: stop}
	return gen
}

// isCurrent reports whether gen is still the armed timer for (callID, kind).
func (r *timerRegistry) isCurrent(callID string, kind timerKind, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[timerKey{callID, kind}]
	return ok && e.gen == gen
}

// clear forgets (callID, kind) if gen is still current. Used by a timer that fired.
func (r *timerRegistry) clear(callID string, kind timerKind, gen uint64) {
	key := timerKey{callID, kind}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok && e.gen == gen {
		delete(r.entries, key)
	}
}

func (r *timerRegistry) cancel(callID string, kind timerKind) {
	key := timerKey{callID, kind}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.stop()
		delete(r.entries, key)
	}
}

func (r *timerRegistry) cancelAll(callID string) {
	r.cancel(callID, timerRing)
	r.cancel(callID, timerDuration)
}

func (r *timerRegistry) has(callID string, kind timerKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[timerKey{callID, kind}]
	return ok
}

// stopAll cancels every timer. Used on shutdown.
func (r *timerRegistry) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.entries {
		e.stop()
		delete(r.entries, k)
	}
}
