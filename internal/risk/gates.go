package risk

import (
	"context"
	"fmt"
	"time"

	"coinward/internal/config"
	"coinward/internal/logger"
)

// RejectReason names the gate that turned a candidate away. Rejections are a
// normal outcome, not errors.
type RejectReason string

const (
	ReasonNone                  RejectReason = ""
	ReasonTradingPaused         RejectReason = "TradingPaused"
	ReasonCircuitBreakerActive  RejectReason = "CircuitBreakerActive"
	ReasonMonthlyLimitReached   RejectReason = "MonthlyLimitReached"
	ReasonNotABuySignal         RejectReason = "NotABuySignal"
	ReasonInsufficientLiquidity RejectReason = "InsufficientLiquidity"
	ReasonLowConfidence         RejectReason = "LowConfidence"
	ReasonOscillatorOutOfRange  RejectReason = "OscillatorOutOfRange"
	ReasonMaxPositionsReached   RejectReason = "MaxPositionsReached"
	ReasonInsufficientBalance   RejectReason = "InsufficientBalance"
)

// Verdict is the outcome of running all gates.
type Verdict struct {
	Approved bool
	Reason   RejectReason
	Detail   string
}

func approved() Verdict { return Verdict{Approved: true} }

func rejected(reason RejectReason, format string, v ...any) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, v...)}
}

// Candidate carries everything the gates need about a proposed entry. The
// numeric fields come from the oracle and the market feed and are treated as
// untrusted until validated here.
type Candidate struct {
	Symbol       string
	Action       string // "BUY" opens, anything else is rejected
	Confidence   float64
	Volume24hUSD float64
	Oscillator   float64
	MonthlyCap   int
}

// GateEnv is the ledger-side snapshot the gates evaluate against.
type GateEnv struct {
	Now                 time.Time
	Paused              bool
	CircuitBreakerUntil *time.Time
	OpenPositions       int
	Balance             float64
}

// MonthlyCounter is the durable per-symbol trade counter. Counts must survive
// process restarts; the cap is meaningless otherwise.
type MonthlyCounter interface {
	CountForMonth(ctx context.Context, symbol string, year int, month time.Month) (int, error)
	Increment(ctx context.Context, symbol string, at time.Time) error
}

// Validator runs the pre-trade safety gates in a fixed order, short-circuiting
// on the first failure so every rejection has a deterministic reason. Cheap
// global checks come first; the monthly-cap lookup is the only one that
// touches storage.
type Validator struct {
	cfg     config.RiskConfig
	counter MonthlyCounter
}

func NewValidator(cfg config.RiskConfig, counter MonthlyCounter) *Validator {
	return &Validator{cfg: cfg, counter: counter}
}

// Validate returns the verdict for cand under env. A non-nil error means the
// gates could not be evaluated (counter storage unavailable) and the caller
// should skip this tick rather than treat it as a rejection.
func (v *Validator) Validate(ctx context.Context, cand Candidate, env GateEnv) (Verdict, error) {
	// 1. global pause
	if v.cfg.TradingPaused || env.Paused {
		return rejected(ReasonTradingPaused, "global trading pause is enabled"), nil
	}

	// 2. circuit breaker
	if env.CircuitBreakerUntil != nil && env.Now.Before(*env.CircuitBreakerUntil) {
		return rejected(ReasonCircuitBreakerActive, "circuit breaker active until %s",
			env.CircuitBreakerUntil.Format(time.RFC3339)), nil
	}

	// 3. monthly per-symbol cap
	limit := cand.MonthlyCap
	if limit > 0 && v.counter != nil {
		count, err := v.counter.CountForMonth(ctx, cand.Symbol, env.Now.Year(), env.Now.Month())
		if err != nil {
			return Verdict{}, fmt.Errorf("monthly counter lookup failed for %s: %w", cand.Symbol, err)
		}
		if count >= limit {
			return rejected(ReasonMonthlyLimitReached, "%s already traded %d/%d times this month",
				cand.Symbol, count, limit), nil
		}
	}

	// 4. signal direction
	if cand.Action != "BUY" {
		return rejected(ReasonNotABuySignal, "oracle action is %q", cand.Action), nil
	}

	// 5. liquidity floor
	if cand.Volume24hUSD < v.cfg.MinLiquidityUSD {
		return rejected(ReasonInsufficientLiquidity, "24h volume $%.0fM below $%.0fM floor",
			cand.Volume24hUSD/1e6, v.cfg.MinLiquidityUSD/1e6), nil
	}

	// 6. confidence threshold
	if cand.Confidence < v.cfg.MinConfidence {
		return rejected(ReasonLowConfidence, "confidence %.0f below minimum %.0f",
			cand.Confidence, v.cfg.MinConfidence), nil
	}

	// 7. oscillator band
	if cand.Oscillator < v.cfg.OscillatorMin || cand.Oscillator > v.cfg.OscillatorMax {
		return rejected(ReasonOscillatorOutOfRange, "oscillator %.1f outside [%.0f, %.0f]",
			cand.Oscillator, v.cfg.OscillatorMin, v.cfg.OscillatorMax), nil
	}

	// 8. open-position capacity (DUST excluded by the caller's count)
	if env.OpenPositions >= v.cfg.MaxOpenPositions {
		return rejected(ReasonMaxPositionsReached, "open positions %d/%d",
			env.OpenPositions, v.cfg.MaxOpenPositions), nil
	}

	// 9. absolute balance floor
	if env.Balance < v.cfg.MinAccountBalanceUSD {
		return rejected(ReasonInsufficientBalance, "balance $%.2f below $%.2f minimum",
			env.Balance, v.cfg.MinAccountBalanceUSD), nil
	}

	logger.Infof("gates: all passed for %s (confidence=%.0f)", cand.Symbol, cand.Confidence)
	return approved(), nil
}
