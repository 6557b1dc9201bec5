package pricing

import "time"

// CallSettings is one versioned row of video-call pricing.
// Coin amounts are whole coins using int64.
type CallSettings struct {
	ID string `json:"id" db:"id"`

	// CoinPrice is charged to the caller once per call.
	CoinPrice int64 `json:"coin_price" db:"coin_price"`

	// DurationSeconds is the maximum connected time a call buys.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	RingTimeoutSeconds int `json:"ring_timeout_seconds" db:"ring_timeout_seconds"`

	// Effective window for pricing.
	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	Status PricingStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// effectiveAt reports whether the row applies at the given instant.
func (s CallSettings) effectiveAt(at time.Time) bool {
	if s.Status != PricingStatusActive {
		return false
	}
	if at.Before(s.EffectiveFrom) {
		return false
	}
	if s.EffectiveTo != nil && !at.Before(*s.EffectiveTo) {
		return false
	}
	return true
}

type PricingStatus string

const (
	PricingStatusActive   PricingStatus = "active"
	PricingStatusInactive PricingStatus = "inactive"
)

// Quote is the price/timing snapshot taken when a call is created.
type Quote struct {
	CoinAmount         int64  `json:"coin_amount"`
	DurationSeconds    int    `json:"duration_seconds"`
	RingTimeoutSeconds int    `json:"ring_timeout_seconds"`
	SettingsID         string `json:"settings_id,omitempty"`
}
