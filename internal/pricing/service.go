package pricing

import (
	"context"
	"errors"
	"time"
)

// Service resolves the price and timing a new call is created with.
//
// Contract:
// - An effective call_settings row wins over the configured defaults.
// - Zero or negative fields in a row fall back to the defaults field by field.
// - Pure lookup; never touches balances.
type Service struct {
	repo     SettingsRepository
	defaults Quote
	clock    func() time.Time
}

func NewService(repo SettingsRepository, defaults Quote) *Service {
	return &Service{repo: repo, defaults: defaults, clock: time.Now}
}

var ErrInvalidQuote = errors.New("invalid call quote")

// SettingsRepository abstracts pricing persistence.
type SettingsRepository interface {
	FindCallSettings(ctx context.Context, at time.Time) (CallSettings, bool, error)
}

// Quote returns the snapshot to apply to a call created now.
func (s *Service) Quote(ctx context.Context) (Quote, error) {
	q := s.defaults
	if s.repo != nil {
		row, ok, err := s.repo.FindCallSettings(ctx, s.clock().UTC())
		if err != nil {
			return Quote{}, err
		}
		if ok {
			q = merge(q, row)
		}
	}
	if q.CoinAmount < 0 || q.DurationSeconds <= 0 || q.RingTimeoutSeconds <= 0 {
		return Quote{}, ErrInvalidQuote
	}
	return q, nil
}

func merge(def Quote, row CallSettings) Quote {
	out := def
	out.SettingsID = row.ID
	if row.CoinPrice > 0 {
		out.CoinAmount = row.CoinPrice
	}
	if row.DurationSeconds > 0 {
		out.DurationSeconds = row.DurationSeconds
	}
	if row.RingTimeoutSeconds > 0 {
		out.RingTimeoutSeconds = row.RingTimeoutSeconds
	}
	return out
}
