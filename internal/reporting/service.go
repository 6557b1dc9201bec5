package reporting

import (
	"context"
	"errors"
	"time"

	"dating-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side of the call ledger. calls.PostgresRepo and
// calls.MemoryRepo both satisfy it.
type Repository interface {
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]calls.CallSession, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func validRange(r TimeRange) bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) list(ctx context.Context, r TimeRange) ([]calls.CallSession, error) {
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}
	return s.repo.ListCreatedBetween(ctx, r.From, r.To)
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if !validRange(req.Range) {
		return CallsSummary{}, ErrInvalidRequest
	}
	rows, err := s.list(ctx, req.Range)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: req.Range, UserID: req.UserID, ByEndReason: map[string]int{}}
	for _, c := range rows {
		if req.UserID != "" && !c.IsParticipant(req.UserID) {
			continue
		}
		out.TotalCalls++
		if c.ConnectedAt != nil {
			out.ConnectedCalls++
		}
		if c.Ended() {
			out.ByEndReason[string(c.EndReason)]++
			out.TotalConnectedSeconds += c.ConnectedSeconds()
		} else {
			out.LiveCalls++
		}
		switch c.BillingStatus {
		case calls.BillingCaptured:
			out.CapturedCoins += c.CoinAmount
		case calls.BillingRefunded:
			out.RefundedCoins += c.CoinAmount
		case calls.BillingLocked:
			out.LockedCoins += c.CoinAmount
		}
	}
	if out.ConnectedCalls > 0 {
		out.AverageConnectedSeconds = out.TotalConnectedSeconds / out.ConnectedCalls
	}
	if out.TotalCalls > 0 {
		out.ConnectionRate = float64(out.ConnectedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}

func (s *Service) UserCoins(ctx context.Context, req UserCoinsRequest) (UserCoins, error) {
	if req.UserID == "" || !validRange(req.Range) {
		return UserCoins{}, ErrInvalidRequest
	}
	rows, err := s.list(ctx, req.Range)
	if err != nil {
		return UserCoins{}, err
	}

	out := UserCoins{UserID: req.UserID}
	for _, c := range rows {
		switch req.UserID {
		case c.CallerID:
			out.CallsPlaced++
			if c.BillingStatus == calls.BillingCaptured {
				out.SpentCoins += c.CoinAmount
			}
		case c.ReceiverID:
			out.CallsReceived++
			if c.BillingStatus == calls.BillingCaptured {
				out.EarnedCoins += c.CoinAmount
			}
		}
	}
	out.NetCoins = out.EarnedCoins - out.SpentCoins
	return out, nil
}
