package risk

import (
	"time"

	"coinward/internal/strategy"
)

type Status string

const (
	// StatusActive marks a live position counted toward capacity.
	StatusActive Status = "ACTIVE"
	// StatusDust marks a fully closed position retained for accounting only.
	StatusDust Status = "DUST"
)

// TakeProfitTarget is a concrete target level seeded from the policy at open
// time. Targets are consumed front to back and never recomputed afterwards.
type TakeProfitTarget struct {
	Price         float64 `json:"price"`
	CloseFraction float64 `json:"close_fraction"`
}

// Position is one open (possibly partially closed) holding. All fields are
// owned by the Ledger; callers only ever see copies.
type Position struct {
	TradeID        string             `json:"trade_id"`
	Symbol         string             `json:"symbol"`
	EntryPrice     float64            `json:"entry_price"`
	Quantity       float64            `json:"quantity"`
	Remaining      float64            `json:"remaining_quantity"`
	EntryTime      time.Time          `json:"entry_time"`
	StopLoss       float64            `json:"stop_loss"`
	Targets        []TakeProfitTarget `json:"take_profit_targets"`
	HighestPrice   float64            `json:"highest_price_seen"`
	FirstTargetHit bool               `json:"first_target_hit"`
	StopTightened  bool               `json:"stop_tightened"`
	Status         Status             `json:"status"`
	Confidence     float64            `json:"confidence"`

	Policy strategy.Policy `json:"-"`

	// RealizedPnL accumulates across partial closes and folds into the
	// final close result.
	RealizedPnL float64 `json:"realized_pnl"`

	// set once the position goes to DUST, makes Close idempotent
	closeResult *ClosedPosition
}

// ClosedPosition records the facts of a full close.
type ClosedPosition struct {
	TradeID    string      `json:"trade_id"`
	Symbol     string      `json:"symbol"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  float64     `json:"exit_price"`
	Quantity   float64     `json:"quantity"`
	PnL        float64     `json:"pnl"`
	PnLPct     float64     `json:"pnl_pct"`
	Reason     CloseReason `json:"reason"`
	ClosedAt   time.Time   `json:"closed_at"`
}

func (p *Position) HoldDuration(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// UnrealizedPnL is computed on the remaining quantity.
func (p *Position) UnrealizedPnL(price float64) (pnl, pct float64) {
	if price <= 0 || p.EntryPrice <= 0 {
		return 0, 0
	}
	pnl = (price - p.EntryPrice) * p.Remaining
	pct = (price - p.EntryPrice) / p.EntryPrice * 100
	return pnl, pct
}

// clone returns a detached copy safe to hand outside the ledger lock.
func (p *Position) clone() Position {
	cp := *p
	cp.Targets = append([]TakeProfitTarget(nil), p.Targets...)
	cp.closeResult = nil
	return cp
}

// seedTargets materializes policy target offsets into absolute prices.
func seedTargets(entry float64, pol strategy.Policy) []TakeProfitTarget {
	out := make([]TakeProfitTarget, 0, len(pol.Targets))
	for _, t := range pol.Targets {
		price := targetPrice(entry, t.OffsetPct)
		if price <= 0 {
			continue
		}
		out = append(out, TakeProfitTarget{Price: price, CloseFraction: t.CloseFraction})
	}
	return out
}
