// Package notify delivers push-style notifications off the signaling path.
//
// Enqueue never blocks. Workers retry failed deliveries with exponential
// backoff and give up after MaxAttempts; failures are logged, not returned.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dating-platform/pkg/logger"
)

type Kind string

const (
	KindIncomingCall Kind = "incoming_call"
	KindMissedCall   Kind = "missed_call"
)

type Notification struct {
	UserID string `json:"user_id"`
	Kind   Kind   `json:"kind"`
	CallID string `json:"call_id"`
	FromID string `json:"from_id,omitempty"`
}

// Notifier sends one notification. Implementations wrap the push provider.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. Used when no push provider is wired.
type LogNotifier struct {
	Log *slog.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	logger.OrDefault(l.Log).Info("notification", "user_id", n.UserID, "kind", n.Kind, "call_id", n.CallID)
	return nil
}

type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// Queue is a bounded in-process outbox.
type Queue struct {
	cfg      Config
	notifier Notifier
	log      *slog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan Notification

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueue(n Notifier, cfg Config, log *slog.Logger) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:      cfg,
		notifier: n,
		log:      logger.OrDefault(log),
		jobs:     make(chan Notification, cfg.QueueSize),
	}
}

// Start launches the workers. They stop when ctx is done or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue reports false when the queue is full or closed; the notification is dropped.
func (q *Queue) Enqueue(n Notification) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- n:
		return true
	default:
		q.log.Warn("notify queue full, dropping", "user_id", n.UserID, "kind", n.Kind, "call_id", n.CallID)
		return false
	}
}

// Stop closes the queue and waits for workers to drain what was already queued.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q.jobs:
			if !ok {
				return
			}
			q.deliver(ctx, n)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, n Notification) {
	for attempt := 1; ; attempt++ {
		err := q.notifier.Notify(ctx, n)
		if err == nil {
			return
		}
		if attempt >= q.cfg.MaxAttempts {
			q.log.Error("notification failed", "user_id", n.UserID, "kind", n.Kind, "call_id", n.CallID, "attempts", attempt, "err", err)
			return
		}
		wait := q.backoff(attempt)
		q.log.Debug("notification retry", "user_id", n.UserID, "kind", n.Kind, "attempt", attempt, "wait", wait, "err", err)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (q *Queue) backoff(attempt int) time.Duration {
	d := q.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= q.cfg.MaxBackoff {
			return q.cfg.MaxBackoff
		}
	}
	return d
}
