package risk

import (
	"time"
)

// CloseReason names why an exit action fired.
type CloseReason string

const (
	ReasonMaxHoldExceeded CloseReason = "MaxHoldExceeded"
	ReasonEarlyStopLoss   CloseReason = "EarlyStopLoss"
	ReasonStopLoss        CloseReason = "StopLoss"
	ReasonFirstTarget     CloseReason = "FirstTarget"
	ReasonTrailingStop    CloseReason = "TrailingStop"
	ReasonSecondTarget    CloseReason = "SecondTarget"
	ReasonManual          CloseReason = "Manual"
	ReasonReconcile       CloseReason = "Reconcile"
)

type ActionType int

const (
	ActionNone ActionType = iota
	ActionCloseFull
	ActionClosePartial
)

// Action is the outcome of one exit evaluation. At most one close action is
// ever set; the adjustment fields (stop tighten, watermark, trailing arm)
// describe position mutations that accompany or precede it.
type Action struct {
	Type     ActionType
	Reason   CloseReason
	Fraction float64 // close fraction of original quantity, partial closes only

	TightenStop    bool
	NewStopLoss    float64
	RaiseWatermark bool
	NewWatermark   float64
	ArmTrailing    bool
}

func (a Action) IsExit() bool { return a.Type != ActionNone }

// EvaluateExit runs the exit state machine over a position snapshot. It is
// pure: the caller applies the returned action through the ledger.
//
// Priority order, first exit wins:
//  1. max hold exceeded (unconditional)
//  2. during minimum hold only the wide initial stop is armed
//  3. stop tightens once when the minimum hold elapses
//  4. tightened stop
//  5. first target: partial close, arm trailing
//  6. trailing stop (only after the first target)
//  7. second target: close the remainder
func EvaluateExit(pos Position, price float64, now time.Time) Action {
	// feed gap: skip the tick entirely, never treat missing data as a price
	if price <= 0 || pos.Status != StatusActive || pos.Remaining <= 0 {
		return Action{}
	}

	pol := pos.Policy
	hold := pos.HoldDuration(now)

	if pol.MaxHold > 0 && hold >= pol.MaxHold {
		return Action{Type: ActionCloseFull, Reason: ReasonMaxHoldExceeded}
	}

	if hold < pol.MinHold {
		if priceBreachedStop(price, stopPrice(pos.EntryPrice, pol.InitialStopPct)) {
			return Action{Type: ActionCloseFull, Reason: ReasonEarlyStopLoss}
		}
		return Action{}
	}

	act := Action{}
	effectiveStop := pos.StopLoss
	if !pos.StopTightened {
		tightened := stopPrice(pos.EntryPrice, pol.RegularStopPct)
		if tightened > effectiveStop {
			act.TightenStop = true
			act.NewStopLoss = tightened
			effectiveStop = tightened
		}
	}

	if priceBreachedStop(price, effectiveStop) {
		act.Type = ActionCloseFull
		act.Reason = ReasonStopLoss
		return act
	}

	if !pos.FirstTargetHit {
		if len(pos.Targets) > 0 && targetHit(price, pos.Targets[0].Price) {
			act.Type = ActionClosePartial
			act.Reason = ReasonFirstTarget
			act.Fraction = pos.Targets[0].CloseFraction
			act.ArmTrailing = true
			act.RaiseWatermark = true
			act.NewWatermark = price
			return act
		}
		return act
	}

	// trailing phase: maintain the watermark, then check the trail and the
	// second target against the updated high
	watermark := pos.HighestPrice
	if decimalGT(price, watermark) {
		watermark = price
		act.RaiseWatermark = true
		act.NewWatermark = price
	}
	if priceBreachedStop(price, trailingStopPrice(watermark, pol.TrailingStopPct)) {
		act.Type = ActionCloseFull
		act.Reason = ReasonTrailingStop
		return act
	}
	if len(pos.Targets) > 1 && targetHit(price, pos.Targets[1].Price) {
		act.Type = ActionCloseFull
		act.Reason = ReasonSecondTarget
		return act
	}
	return act
}
