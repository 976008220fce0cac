package trader

import (
	"context"

	"coinward/internal/logger"
	"coinward/internal/pkg/trading"
	"coinward/internal/risk"
)

// fills below this share of the requested quantity count as short
const fillTolerance = 0.99

// RunMonitor is one monitor tick: every open position gets a fresh quote,
// one exit evaluation, and at most one committed action.
func (e *Engine) RunMonitor(ctx context.Context) {
	for _, pos := range e.ledger.OpenPositions() {
		if ctx.Err() != nil {
			return
		}
		e.monitorPosition(ctx, pos)
	}
}

func (e *Engine) monitorPosition(ctx context.Context, pos risk.Position) {
	q, ok := e.quote(ctx, pos.Symbol)
	if !ok {
		logger.Warnf("monitor: no quote for %s, skipping tick", pos.Symbol)
		return
	}

	act := risk.EvaluateExit(pos, q.Price, e.now())
	switch act.Type {
	case risk.ActionNone:
		if act.TightenStop || act.RaiseWatermark {
			e.commitAdjust(ctx, pos.TradeID, act)
		}
	case risk.ActionClosePartial:
		e.commitPartial(ctx, pos, q.Price, act)
	case risk.ActionCloseFull:
		e.commitClose(ctx, pos, q.Price, act)
	}
}

func (e *Engine) commitAdjust(ctx context.Context, tradeID string, act risk.Action) {
	if err := e.ledger.ApplyAdjust(tradeID, act); err != nil {
		logger.Warnf("monitor: adjust %s: %v", tradeID, err)
		return
	}
	e.journalPosition(ctx, tradeID)
}

func (e *Engine) commitPartial(ctx context.Context, pos risk.Position, price float64, act risk.Action) {
	qty := partialQuantity(pos, act.Fraction)
	if qty <= 0 {
		return
	}
	res, ok := e.sell(ctx, pos.Symbol, qty)
	if !ok {
		return
	}
	filled := res.ExecutedQty
	if filled <= 0 {
		filled = qty
	}
	if filled < qty*fillTolerance {
		logger.Warnf("monitor: partial close of %s filled %.8f of %.8f, reconciling",
			pos.Symbol, filled, qty)
		e.ledger.FlagEntriesHalted("short fill selling " + pos.Symbol)
	}
	updated, err := e.ledger.PartialClose(ctx, pos.TradeID, res.AvgPrice, filled, act)
	if err != nil {
		logger.Errorf("monitor: partial close of %s sold but not booked: %v", pos.TradeID, err)
		e.ledger.FlagEntriesHalted("unbooked partial close on " + pos.Symbol)
		return
	}
	e.journalPosition(ctx, updated.TradeID)
	logger.Infof("monitor: %s took first target at %.8f, trailing armed", pos.Symbol, res.AvgPrice)
}

func (e *Engine) commitClose(ctx context.Context, pos risk.Position, price float64, act risk.Action) {
	res, ok := e.sell(ctx, pos.Symbol, pos.Remaining)
	if !ok {
		return
	}
	exitPrice := res.AvgPrice
	if exitPrice <= 0 {
		exitPrice = price
	}
	if res.ExecutedQty > 0 && res.ExecutedQty < pos.Remaining*fillTolerance {
		// the venue sold less than the remainder: book exactly what filled,
		// keep the position live, and halt entries until a reconcile pass
		logger.Errorf("monitor: close of %s filled %.8f of %.8f, booking the fill",
			pos.Symbol, res.ExecutedQty, pos.Remaining)
		if _, err := e.ledger.PartialClose(ctx, pos.TradeID, exitPrice, res.ExecutedQty, act); err != nil {
			logger.Errorf("monitor: short fill on %s sold but not booked: %v", pos.TradeID, err)
		} else {
			e.journalPosition(ctx, pos.TradeID)
		}
		e.ledger.FlagEntriesHalted("short fill closing " + pos.Symbol)
		return
	}
	closed, err := e.ledger.Close(ctx, pos.TradeID, exitPrice, act.Reason)
	if err != nil {
		logger.Errorf("monitor: close of %s sold but not booked: %v", pos.TradeID, err)
		e.ledger.FlagEntriesHalted("unbooked close on " + pos.Symbol)
		return
	}
	logger.Infof("monitor: closed %s pnl=%.2f (%.2f%%) reason=%s",
		closed.Symbol, closed.PnL, closed.PnLPct, closed.Reason)
}

func (e *Engine) sell(ctx context.Context, symbol string, quantity float64) (res sellResult, ok bool) {
	if quantity <= 0 {
		return res, false
	}
	if !e.exchBreaker.Allow() {
		logger.Warnf("monitor: exchange breaker open, deferring sell of %s", symbol)
		return res, false
	}
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	order, err := e.exch.MarketSell(cctx, symbol, quantity)
	if err != nil {
		e.exchBreaker.RecordFailure()
		logger.Errorf("monitor: sell %s failed: %v", symbol, err)
		return res, false
	}
	e.exchBreaker.RecordSuccess()
	return sellResult{AvgPrice: order.AvgPrice, ExecutedQty: order.ExecutedQty}, true
}

type sellResult struct {
	AvgPrice    float64
	ExecutedQty float64
}

func (e *Engine) journalPosition(ctx context.Context, tradeID string) {
	if e.journal == nil {
		return
	}
	for _, p := range e.ledger.OpenPositions() {
		if p.TradeID == tradeID {
			if err := e.journal.SaveAdjust(ctx, p); err != nil {
				logger.Warnf("monitor: journal adjust for %s: %v", tradeID, err)
			}
			return
		}
	}
}

func partialQuantity(pos risk.Position, fraction float64) float64 {
	return trading.CloseQuantity(pos.Remaining, pos.Quantity, fraction)
}
