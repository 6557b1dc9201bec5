package jobs

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"dating-platform/internal/calls"
	"dating-platform/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFlusher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFlusher) Flush(context.Context) (int, error) {
	f.calls.Add(1)
	return 1, f.err
}

type countingReconciler struct {
	calls atomic.Int32
	rep   calls.ReconcileReport
}

func (r *countingReconciler) Reconcile(context.Context) (calls.ReconcileReport, error) {
	r.calls.Add(1)
	return r.rep, nil
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, nil, &countingReconciler{}, logger.Nop())
	require.Error(t, err)
}

func TestNew_RejectsSubSecondInterval(t *testing.T) {
	_, err := New(Config{FlushInterval: 10 * time.Millisecond}, &countingFlusher{}, &countingReconciler{}, logger.Nop())
	require.Error(t, err)
}

func TestStart_ReconcilesImmediately(t *testing.T) {
	f, rc := &countingFlusher{}, &countingReconciler{rep: calls.ReconcileReport{Scanned: 2, Missed: 1}}
	r, err := New(Config{}, f, rc, logger.Nop())
	require.NoError(t, err)

	r.Start(context.Background())
	assert.Equal(t, int32(1), rc.calls.Load())
	assert.Equal(t, int32(0), f.calls.Load())

	r.Stop(context.Background())
	assert.Equal(t, int32(1), f.calls.Load(), "stop performs a final flush")
}

func TestSchedule_RunsFlushPeriodically(t *testing.T) {
	f, rc := &countingFlusher{}, &countingReconciler{}
	r, err := New(Config{FlushInterval: time.Second}, f, rc, logger.Nop())
	require.NoError(t, err)

	r.Start(context.Background())
	defer r.Stop(context.Background())

	require.Eventually(t, func() bool { return f.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestFlushOnce_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	f := &countingFlusher{err: errors.New("db down")}
	r, err := New(Config{}, f, &countingReconciler{}, logger.NewWithWriter("test", &buf))
	require.NoError(t, err)

	r.FlushOnce(context.Background())
	assert.Contains(t, buf.String(), "earnings flush failed")
	assert.Contains(t, buf.String(), "db down")
}
