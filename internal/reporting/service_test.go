package reporting

import (
	"context"
	"testing"
	"time"

	"dating-platform/internal/calls"
)

func seed(t *testing.T, now time.Time) *calls.MemoryRepo {
	t.Helper()
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }
	repo := calls.NewMemoryRepo()
	rows := []calls.CallSession{
		{ID: "c1", CallerID: "a", ReceiverID: "b", Status: calls.StatusEnded, BillingStatus: calls.BillingCaptured,
			CoinAmount: 50, CallDurationSeconds: 300, CreatedAt: now, ConnectedAt: at(10 * time.Second),
			EndedAt: at(130 * time.Second), EndReason: calls.EndReasonCallerEnded},
		{ID: "c2", CallerID: "a", ReceiverID: "c", Status: calls.StatusEnded, BillingStatus: calls.BillingRefunded,
			CoinAmount: 50, CallDurationSeconds: 300, CreatedAt: now, EndedAt: at(30 * time.Second), EndReason: calls.EndReasonMissed},
		{ID: "c3", CallerID: "c", ReceiverID: "a", Status: calls.StatusEnded, BillingStatus: calls.BillingCaptured,
			CoinAmount: 50, CallDurationSeconds: 300, CreatedAt: now, ConnectedAt: at(5 * time.Second),
			EndedAt: at(305 * time.Second), EndReason: calls.EndReasonTimerExpired},
		{ID: "c4", CallerID: "d", ReceiverID: "e", Status: calls.StatusRinging, BillingStatus: calls.BillingLocked,
			CoinAmount: 50, CallDurationSeconds: 300, CreatedAt: now},
		{ID: "old", CallerID: "a", ReceiverID: "b", Status: calls.StatusEnded, BillingStatus: calls.BillingCaptured,
			CoinAmount: 50, CallDurationSeconds: 300, CreatedAt: now.Add(-48 * time.Hour), EndReason: calls.EndReasonCallerEnded},
	}
	for _, r := range rows {
		if err := repo.Create(context.Background(), r); err != nil {
			t.Fatalf("seed %s: %v", r.ID, err)
		}
	}
	return repo
}

func TestCallsSummary_Aggregates(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(seed(t, now))

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 4 || out.LiveCalls != 1 || out.ConnectedCalls != 2 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.ByEndReason["missed"] != 1 || out.ByEndReason["timer_expired"] != 1 || out.ByEndReason["caller_ended"] != 1 {
		t.Fatalf("unexpected reasons: %v", out.ByEndReason)
	}
	if out.CapturedCoins != 100 || out.RefundedCoins != 50 || out.LockedCoins != 50 {
		t.Fatalf("unexpected coins: captured=%d refunded=%d locked=%d", out.CapturedCoins, out.RefundedCoins, out.LockedCoins)
	}
	if out.TotalConnectedSeconds != 420 || out.AverageConnectedSeconds != 210 {
		t.Fatalf("unexpected durations: total=%d avg=%d", out.TotalConnectedSeconds, out.AverageConnectedSeconds)
	}
}

func TestCallsSummary_FiltersByUser(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(seed(t, now))

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{UserID: "e", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 || out.LiveCalls != 1 || out.ConnectionRate != 0 {
		t.Fatalf("unexpected summary: %+v", out)
	}
}

func TestUserCoins_SpentAndEarned(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(seed(t, now))

	out, err := svc.UserCoins(context.Background(), UserCoinsRequest{UserID: "a", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.CallsPlaced != 2 || out.CallsReceived != 1 {
		t.Fatalf("unexpected call counts: %+v", out)
	}
	if out.SpentCoins != 50 || out.EarnedCoins != 50 || out.NetCoins != 0 {
		t.Fatalf("unexpected coins: %+v", out)
	}
}

func TestReporting_RejectsBadRange(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(calls.NewMemoryRepo())
	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: TimeRange{From: now, To: now}}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.UserCoins(context.Background(), UserCoinsRequest{Range: TimeRange{From: now, To: now.Add(time.Hour)}}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
