package risk

import "time"

// RiskState is a consistent snapshot of the portfolio-level counters owned by
// the Ledger. The circuit breaker and daily-loss figures survive restarts via
// the state store.
type RiskState struct {
	Balance             float64    `json:"balance"`
	PeakBalance         float64    `json:"peak_balance"`
	DailyLoss           float64    `json:"daily_loss"`
	DayStart            time.Time  `json:"day_start"`
	ConsecutiveLosses   int        `json:"consecutive_losses"`
	CircuitBreakerUntil *time.Time `json:"circuit_breaker_until,omitempty"`
	MaxDrawdownPct      float64    `json:"max_drawdown_pct"`
	OpenPositions       int        `json:"open_positions"`
	ClosedPositions     int        `json:"closed_positions"`
	EntriesHalted       bool       `json:"entries_halted"`
	TradingPaused       bool       `json:"trading_paused"`
}

// BreakerActive reports whether the consecutive-loss (or daily-loss) cooldown
// is still in effect at the given instant.
func (s RiskState) BreakerActive(now time.Time) bool {
	return s.CircuitBreakerUntil != nil && now.Before(*s.CircuitBreakerUntil)
}
