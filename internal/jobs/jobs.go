// Package jobs runs the periodic call maintenance work: flushing buffered
// receiver earnings and sweeping sessions whose timers were lost.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dating-platform/internal/calls"
	"dating-platform/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Flusher drains buffered earnings into the wallet.
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// Reconciler recovers sessions without a live timer.
type Reconciler interface {
	Reconcile(ctx context.Context) (calls.ReconcileReport, error)
}

type Config struct {
	FlushInterval     time.Duration
	ReconcileInterval time.Duration
	// JobTimeout bounds a single run. Zero means one minute.
	JobTimeout time.Duration
}

type Runner struct {
	cron       *cron.Cron
	flusher    Flusher
	reconciler Reconciler
	timeout    time.Duration
	log        *slog.Logger
}

// New registers both jobs. An interval of zero disables that job.
func New(cfg Config, flusher Flusher, reconciler Reconciler, log *slog.Logger) (*Runner, error) {
	if flusher == nil || reconciler == nil {
		return nil, errors.New("jobs: flusher and reconciler are required")
	}
	log = logger.OrDefault(log).With("component", "jobs")
	cl := cronLogger{log: log}
	r := &Runner{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		flusher:    flusher,
		reconciler: reconciler,
		timeout:    cfg.JobTimeout,
		log:        log,
	}
	if r.timeout <= 0 {
		r.timeout = time.Minute
	}
	if err := r.every(cfg.FlushInterval, "earnings_flush", r.FlushOnce); err != nil {
		return nil, err
	}
	if err := r.every(cfg.ReconcileInterval, "reconcile", r.ReconcileOnce); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) every(d time.Duration, name string, fn func(context.Context)) error {
	if d <= 0 {
		r.log.Info("job disabled", "job", name)
		return nil
	}
	if d < time.Second {
		return fmt.Errorf("jobs: %s interval %s is below one second", name, d)
	}
	schedule := "@every " + d.String()
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("jobs: add %s: %w", name, err)
	}
	r.log.Info("job scheduled", "job", name, "schedule", schedule)
	return nil
}

// Start runs one reconciliation immediately, then starts the schedule.
func (r *Runner) Start(ctx context.Context) {
	r.log.Info("running startup reconciliation")
	r.ReconcileOnce(ctx)
	r.cron.Start()
}

// Stop waits for running jobs, then flushes whatever earnings remain.
func (r *Runner) Stop(ctx context.Context) {
	stopped := r.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		r.log.Warn("jobs still running at shutdown")
	}
	r.FlushOnce(ctx)
}

func (r *Runner) FlushOnce(ctx context.Context) {
	n, err := r.flusher.Flush(ctx)
	if err != nil {
		r.log.Error("earnings flush failed", "credited", n, "err", err)
		return
	}
	if n > 0 {
		r.log.Info("earnings flushed", "credited", n)
	}
}

func (r *Runner) ReconcileOnce(ctx context.Context) {
	rep, err := r.reconciler.Reconcile(ctx)
	if err != nil {
		r.log.Error("reconcile failed", "err", err)
		return
	}
	if rep.Ended() > 0 || rep.Rearmed > 0 || rep.Repaired > 0 {
		r.log.Info("reconcile finished",
			"scanned", rep.Scanned,
			"missed", rep.Missed,
			"failed", rep.Failed,
			"expired", rep.Expired,
			"rearmed", rep.Rearmed,
			"repaired", rep.Repaired,
		)
	}
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "err", err)...)
}
