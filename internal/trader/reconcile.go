package trader

import (
	"context"
	"errors"

	"coinward/internal/logger"
	symbolpkg "coinward/internal/pkg/symbol"
	"coinward/internal/strategy"
)

// dust below this notional is ignored when comparing holdings
const reconcileMinNotionalUSD = 1.0

// Reconcile compares exchange holdings against the ledger. Untracked holdings
// are adopted into the exit lifecycle; a position the exchange no longer
// backs halts new entries until resolved. A clean pass clears any halt.
func (e *Engine) Reconcile(ctx context.Context) {
	if !e.exchBreaker.Allow() {
		return
	}
	cctx, cancel := e.callCtx(ctx)
	holdings, err := e.exch.Holdings(cctx)
	cancel()
	if err != nil {
		e.exchBreaker.RecordFailure()
		logger.Warnf("reconcile: holdings fetch failed: %v", err)
		return
	}
	e.exchBreaker.RecordSuccess()

	quote := e.cfg.Exchange.QuoteAsset
	held := make(map[string]float64, len(holdings))
	for _, h := range holdings {
		held[symbolpkg.Pair(h.Asset, quote)] = h.Quantity
	}

	clean := true
	for _, pos := range e.ledger.OpenPositions() {
		qty, onExchange := held[pos.Symbol]
		delete(held, pos.Symbol)
		if !onExchange || qty < pos.Remaining*0.99 {
			clean = false
			e.ledger.FlagEntriesHalted("exchange holds less " + pos.Symbol + " than the ledger expects")
		}
	}

	for symbol, qty := range held {
		if !e.adoptHolding(ctx, symbol, qty) {
			clean = false
		}
	}

	if clean {
		e.ledger.ClearEntriesHalted()
	}
}

func (e *Engine) adoptHolding(ctx context.Context, symbol string, qty float64) bool {
	pol, err := e.resolver.Resolve(symbol)
	if err != nil {
		// not a symbol we trade, leave it alone
		if errors.Is(err, strategy.ErrUnconfiguredSymbol) {
			return true
		}
		logger.Warnf("reconcile: resolve %s: %v", symbol, err)
		return false
	}

	q, ok := e.quote(ctx, symbol)
	if !ok {
		return false
	}
	if qty*q.Price < reconcileMinNotionalUSD {
		return true
	}

	if _, err := e.ledger.Adopt(ctx, symbol, qty, q.Price, pol); err != nil {
		logger.Errorf("reconcile: adopt %s: %v", symbol, err)
		return false
	}
	return true
}
