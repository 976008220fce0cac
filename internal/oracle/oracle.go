// Package oracle talks to the external signal service that scores entry
// candidates. Its JSON output is untrusted input: everything is validated
// before a number reaches the risk engine.
package oracle

import "context"

// MarketSnapshot is the per-symbol market context sent with a request.
type MarketSnapshot struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	QuoteVolume24h float64 `json:"quote_volume_24h"`
	VolumeSpike    bool    `json:"volume_spike"`
}

// Proposal is a validated entry recommendation. StopPctOverride is nil when
// the oracle did not supply a usable stop, callers fall back to the policy.
type Proposal struct {
	Symbol          string
	Action          string // BUY, HOLD or SELL
	Confidence      float64
	Oscillator      float64
	StopPctOverride *float64
	Rationale       string
	Raw             string // unparsed response body, kept for the audit log
}

// RiskAssessment is the answer to a position-risk read, used when the book is
// at capacity and no new entries are possible anyway.
type RiskAssessment struct {
	Symbol string
	Level  string // LOW, MEDIUM or HIGH
	Note   string
	Raw    string // unparsed response body, kept for the audit log
}

// PositionView is the subset of position state shared with the oracle.
type PositionView struct {
	Symbol        string  `json:"symbol"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPct float64 `json:"unrealized_pct"`
	HoldDays      float64 `json:"hold_days"`
}

type Oracle interface {
	Propose(ctx context.Context, snap MarketSnapshot) (Proposal, error)
	AssessRisk(ctx context.Context, view PositionView) (RiskAssessment, error)
}
