package calls

import (
	"testing"
	"time"
)

func TestCallSession_RemainingSeconds(t *testing.T) {
	connected := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	s := CallSession{CallDurationSeconds: 300, ConnectedAt: &connected}

	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"at connect", connected, 300},
		{"rounds down", connected.Add(10*time.Second + 900*time.Millisecond), 289},
		{"last partial second", connected.Add(299*time.Second + time.Millisecond), 0},
		{"at deadline", connected.Add(300 * time.Second), 0},
		{"past deadline", connected.Add(time.Hour), 0},
	}
	for _, tc := range cases {
		if got := s.RemainingSeconds(tc.now); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}

	if got := (CallSession{CallDurationSeconds: 300}).RemainingSeconds(connected); got != 0 {
		t.Fatalf("never connected: expected 0, got %d", got)
	}
}

func TestCallSession_ConnectedSeconds(t *testing.T) {
	connected := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := connected.Add(d)
		return &v
	}

	cases := []struct {
		name string
		s    CallSession
		want int
	}{
		{"rounds down", CallSession{CallDurationSeconds: 300, ConnectedAt: &connected, EndedAt: at(61500 * time.Millisecond)}, 61},
		{"capped at duration", CallSession{CallDurationSeconds: 300, ConnectedAt: &connected, EndedAt: at(302 * time.Second)}, 300},
		{"never connected", CallSession{CallDurationSeconds: 300, EndedAt: at(time.Minute)}, 0},
		{"still live", CallSession{CallDurationSeconds: 300, ConnectedAt: &connected}, 0},
		{"end before connect", CallSession{CallDurationSeconds: 300, ConnectedAt: &connected, EndedAt: at(-time.Second)}, 0},
	}
	for _, tc := range cases {
		if got := tc.s.ConnectedSeconds(); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}
