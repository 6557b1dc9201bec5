package pricing

import (
	"context"
	"errors"
	"testing"
	"time"
)

var defaults = Quote{CoinAmount: 50, DurationSeconds: 300, RingTimeoutSeconds: 30}

func TestQuote_FallsBackToDefaults(t *testing.T) {
	s := NewService(&MemoryRepo{}, defaults)
	q, err := s.Quote(context.Background())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q != defaults {
		t.Fatalf("expected defaults, got %+v", q)
	}
}

func TestQuote_PrefersMostRecentEffectiveRow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := now.Add(-time.Hour)

	repo := &MemoryRepo{}
	repo.Add(CallSettings{ID: "old", CoinPrice: 20, EffectiveFrom: now.Add(-48 * time.Hour), Status: PricingStatusActive})
	repo.Add(CallSettings{ID: "new", CoinPrice: 80, DurationSeconds: 600, EffectiveFrom: now.Add(-24 * time.Hour), Status: PricingStatusActive})
	repo.Add(CallSettings{ID: "expired", CoinPrice: 5, EffectiveFrom: now.Add(-2 * time.Hour), EffectiveTo: &ended, Status: PricingStatusActive})
	repo.Add(CallSettings{ID: "future", CoinPrice: 999, EffectiveFrom: now.Add(time.Hour), Status: PricingStatusActive})
	repo.Add(CallSettings{ID: "off", CoinPrice: 1, EffectiveFrom: now.Add(-time.Minute), Status: PricingStatusInactive})

	s := NewService(repo, defaults)
	s.clock = func() time.Time { return now }

	q, err := s.Quote(context.Background())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.SettingsID != "new" || q.CoinAmount != 80 || q.DurationSeconds != 600 {
		t.Fatalf("unexpected quote: %+v", q)
	}
	if q.RingTimeoutSeconds != 30 {
		t.Fatalf("ring timeout should fall back to default, got %d", q.RingTimeoutSeconds)
	}
}

type failingRepo struct{}

func (failingRepo) FindCallSettings(context.Context, time.Time) (CallSettings, bool, error) {
	return CallSettings{}, false, errors.New("db down")
}

func TestQuote_Errors(t *testing.T) {
	if _, err := NewService(failingRepo{}, defaults).Quote(context.Background()); err == nil {
		t.Fatalf("expected repo error")
	}
	if _, err := NewService(nil, Quote{CoinAmount: 50}).Quote(context.Background()); !errors.Is(err, ErrInvalidQuote) {
		t.Fatalf("expected ErrInvalidQuote, got %v", err)
	}
}
