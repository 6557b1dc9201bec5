package calls

import (
	"context"
	"testing"
	"time"

	"dating-platform/internal/wallet"
	"dating-platform/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_AfterRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.SetBalance("dave", 100)
	h.store.SetBalance("erin", 0)
	h.store.SetBalance("frank", 100)
	h.store.SetBalance("gina", 0)

	// Connected long ago: will be past its deadline.
	old := h.connected(t)
	h.svc.Close()
	h.sched.Advance(time.Duration(testDuration+10) * time.Second)

	// Fresh state before the crash.
	ringing, err := h.svc.InitiateCall(ctx, "carol", "dave", "")
	require.NoError(t, err)
	live, err := h.svc.InitiateCall(ctx, "frank", "gina", "")
	require.NoError(t, err)
	_, err = h.svc.AcceptCall(ctx, live.ID, "gina")
	require.NoError(t, err)
	_, _, err = h.svc.MarkCallConnected(ctx, live.ID, "gina")
	require.NoError(t, err)
	h.svc.Close()

	// Crash: timers and the unflushed earnings are gone.
	require.Equal(t, 2, h.earnings.Len())
	h.earnings = wallet.NewEarningsBuffer(h.store, logger.Nop())
	h.clock.set(h.clock.Now().Add(testRing * time.Second))

	restarted := h.newService()
	rep, err := restarted.Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Scanned)
	assert.Equal(t, 1, rep.Missed)
	assert.Equal(t, 1, rep.Expired)
	assert.Equal(t, 1, rep.Rearmed)
	assert.Equal(t, 2, rep.Ended())
	assert.Equal(t, 3, rep.Repaired)

	h.flush(t)
	assert.Equal(t, int64(50), h.coins(t, "bob"))
	assert.Equal(t, int64(50), h.coins(t, "gina"))

	got, _ := restarted.GetCall(ctx, ringing.ID)
	assert.Equal(t, EndReasonMissed, got.EndReason)
	assert.Equal(t, BillingRefunded, got.BillingStatus)
	assert.Equal(t, int64(100), h.coins(t, "carol"))

	got, _ = restarted.GetCall(ctx, old.ID)
	assert.Equal(t, EndReasonTimerExpired, got.EndReason)
	assert.Equal(t, BillingCaptured, got.BillingStatus)

	got, _ = restarted.GetCall(ctx, live.ID)
	assert.Equal(t, StatusConnected, got.Status)
	assert.True(t, restarted.timers.has(live.ID, timerDuration))

	// The re-armed timer still honours the original deadline.
	h.sched.Advance(time.Duration(testDuration-testRing) * time.Second)
	got, _ = restarted.GetCall(ctx, live.ID)
	assert.Equal(t, EndReasonTimerExpired, got.EndReason)
}

func TestReconcile_RepairsLostEarningsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s := h.connected(t)
	_, _, err := h.svc.EndCall(ctx, s.ID, EndReasonCallerEnded, "alice")
	require.NoError(t, err)
	h.flush(t)
	require.Equal(t, int64(50), h.coins(t, "bob"))

	// Repeated sweeps re-queue the same idempotent credit.
	for i := 0; i < 3; i++ {
		_, err := h.svc.Reconcile(ctx)
		require.NoError(t, err)
		h.flush(t)
	}
	assert.Equal(t, int64(50), h.coins(t, "bob"))
}

func TestReconcile_RepairsFailedRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.svc.InitiateCall(ctx, "alice", "bob", "")
	require.NoError(t, err)
	_, err = h.svc.RejectCall(ctx, s.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(100), h.coins(t, "alice"))

	rep, err := h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Repaired)
	assert.Equal(t, int64(100), h.coins(t, "alice"))
}

func TestReconcile_FailsStaleAccepted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.svc.InitiateCall(ctx, "alice", "bob", "")
	require.NoError(t, err)
	_, err = h.svc.AcceptCall(ctx, s.ID, "bob")
	require.NoError(t, err)

	h.clock.set(h.clock.Now().Add(testRing*time.Second + time.Minute))
	rep, err := h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)

	got, _ := h.svc.GetCall(ctx, s.ID)
	assert.Equal(t, EndReasonConnectionFailed, got.EndReason)
	assert.Equal(t, BillingRefunded, got.BillingStatus)
	assert.Equal(t, int64(100), h.coins(t, "alice"))
	require.Len(t, h.ended(), 1)
}
