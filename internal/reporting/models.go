package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest aggregates sessions created inside Range.
// UserID, when set, narrows it to calls the user took part in.
type CallsSummaryRequest struct {
	Range  TimeRange `json:"range"`
	UserID string    `json:"user_id,omitempty"`
}

type CallsSummary struct {
	Range  TimeRange `json:"range"`
	UserID string    `json:"user_id,omitempty"`

	TotalCalls     int `json:"total_calls"`
	LiveCalls      int `json:"live_calls"`
	ConnectedCalls int `json:"connected_calls"`

	// ByEndReason counts ended sessions per terminal reason.
	ByEndReason map[string]int `json:"by_end_reason"`

	TotalConnectedSeconds   int `json:"total_connected_seconds"`
	AverageConnectedSeconds int `json:"average_connected_seconds"`

	CapturedCoins int64 `json:"captured_coins"`
	RefundedCoins int64 `json:"refunded_coins"`
	// LockedCoins is held by sessions that have not settled yet.
	LockedCoins int64 `json:"locked_coins"`

	ConnectionRate float64 `json:"connection_rate"`
}

// UserCoinsRequest asks for one user's call spend and earnings.
type UserCoinsRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type UserCoins struct {
	UserID string `json:"user_id"`

	CallsPlaced   int `json:"calls_placed"`
	CallsReceived int `json:"calls_received"`

	// SpentCoins counts captured calls the user placed; EarnedCoins those they received.
	SpentCoins  int64 `json:"spent_coins"`
	EarnedCoins int64 `json:"earned_coins"`
	NetCoins    int64 `json:"net_coins"`
}
