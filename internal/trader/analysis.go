package trader

import (
	"context"
	"encoding/json"
	"errors"

	"coinward/internal/logger"
	"coinward/internal/oracle"
	"coinward/internal/risk"
	"coinward/internal/store/auditlog"
	"coinward/internal/strategy"
)

// RunAnalysis is one analysis tick. It refreshes the account balance, then
// either scans configured symbols for new entries or, when the book is full,
// downgrades to risk reads on the positions it already holds.
func (e *Engine) RunAnalysis(ctx context.Context) {
	e.refreshBalance(ctx)

	state := e.ledger.Snapshot()
	if state.OpenPositions >= e.cfg.Risk.MaxOpenPositions {
		e.runConstrained(ctx)
		return
	}
	e.runFull(ctx)
}

func (e *Engine) refreshBalance(ctx context.Context) {
	if !e.exchBreaker.Allow() {
		logger.Warnf("analysis: exchange breaker open, keeping stale balance")
		return
	}
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	bal, err := e.exch.Balance(cctx)
	if err != nil {
		e.exchBreaker.RecordFailure()
		logger.Errorf("analysis: balance refresh failed: %v", err)
		return
	}
	e.exchBreaker.RecordSuccess()
	e.ledger.SetBalance(ctx, bal.Free)
}

func (e *Engine) runFull(ctx context.Context) {
	for _, symbol := range e.resolver.Symbols() {
		if ctx.Err() != nil {
			return
		}
		if _, open := e.ledger.PositionBySymbol(symbol); open {
			continue
		}
		e.evaluateEntry(ctx, symbol)

		// capacity can fill mid-scan
		if e.ledger.Snapshot().OpenPositions >= e.cfg.Risk.MaxOpenPositions {
			logger.Infof("analysis: position capacity reached, stopping scan")
			return
		}
	}
}

func (e *Engine) evaluateEntry(ctx context.Context, symbol string) {
	q, ok := e.quote(ctx, symbol)
	if !ok {
		return
	}
	e.volumeSpiked(symbol, q.QuoteVolume24h) // keep the watermark warm

	pol, err := e.resolver.Resolve(symbol)
	if err != nil {
		if !errors.Is(err, strategy.ErrUnconfiguredSymbol) {
			logger.Errorf("analysis: resolve %s: %v", symbol, err)
		}
		return
	}

	prop, ok := e.propose(ctx, oracle.MarketSnapshot{
		Symbol:         symbol,
		Price:          q.Price,
		QuoteVolume24h: q.QuoteVolume24h,
	})
	if !ok {
		return
	}

	cand := risk.Candidate{
		Symbol:       symbol,
		Action:       prop.Action,
		Confidence:   prop.Confidence,
		Volume24hUSD: q.QuoteVolume24h,
		Oscillator:   prop.Oscillator,
		MonthlyCap:   pol.MaxTradesPerMonth,
	}

	// pre-check before spending an order; the ledger re-validates on commit
	verdict, err := e.validator.Validate(ctx, cand, e.ledger.GateEnv())
	if err != nil {
		logger.Errorf("analysis: gates unavailable for %s: %v", symbol, err)
		return
	}
	if !verdict.Approved {
		logger.Infof("analysis: %s rejected (%s): %s", symbol, verdict.Reason, verdict.Detail)
		return
	}

	if prop.StopPctOverride != nil {
		pol = pol.WithInitialStop(*prop.StopPctOverride)
	}

	sz, err := e.allocator.Size(e.ledger.Snapshot().Balance, q.Price, pol)
	if err != nil || sz.Notional <= 0 {
		logger.Warnf("analysis: sizing produced no order for %s: %v", symbol, err)
		return
	}

	e.openPosition(ctx, cand, pol, sz)
}

func (e *Engine) openPosition(ctx context.Context, cand risk.Candidate, pol strategy.Policy, sz risk.Sizing) {
	if !e.exchBreaker.Allow() {
		logger.Warnf("analysis: exchange breaker open, skipping entry for %s", cand.Symbol)
		return
	}
	cctx, cancel := e.callCtx(ctx)
	res, err := e.exch.MarketBuy(cctx, cand.Symbol, sz.Notional)
	cancel()
	if err != nil {
		e.exchBreaker.RecordFailure()
		logger.Errorf("analysis: buy %s failed: %v", cand.Symbol, err)
		return
	}
	e.exchBreaker.RecordSuccess()
	if res.ExecutedQty <= 0 || res.AvgPrice <= 0 {
		logger.Errorf("analysis: buy %s returned empty fill, flagging ledger", cand.Symbol)
		e.ledger.FlagEntriesHalted("empty fill on " + cand.Symbol)
		return
	}

	fill := risk.Sizing{Quantity: res.ExecutedQty, Notional: res.QuoteSpentUSD}
	pos, verdict, err := e.ledger.Open(ctx, cand, res.AvgPrice, fill, pol)
	if err != nil {
		logger.Errorf("analysis: ledger rejected filled order for %s: %v, unwinding", cand.Symbol, err)
		e.unwind(ctx, cand.Symbol, res.ExecutedQty)
		return
	}
	if !verdict.Approved {
		logger.Warnf("analysis: gates flipped after fill for %s (%s), unwinding", cand.Symbol, verdict.Reason)
		e.unwind(ctx, cand.Symbol, res.ExecutedQty)
		return
	}
	logger.Infof("analysis: opened %s %s qty=%.8f at %.8f confidence=%.0f",
		pos.TradeID, pos.Symbol, pos.Quantity, pos.EntryPrice, pos.Confidence)
}

// unwind sells back a fill the ledger would not admit. Failure here leaves an
// untracked holding, which the reconciler will surface.
func (e *Engine) unwind(ctx context.Context, symbol string, quantity float64) {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	if _, err := e.exch.MarketSell(cctx, symbol, quantity); err != nil {
		logger.Errorf("analysis: unwind of %s failed: %v", symbol, err)
		e.ledger.FlagEntriesHalted("failed to unwind rejected fill on " + symbol)
	}
}

// runConstrained is the at-capacity path: no entries are possible, so the
// oracle is only consulted about held positions, and only when their volume
// spikes enough to suggest something changed.
func (e *Engine) runConstrained(ctx context.Context) {
	for _, pos := range e.ledger.OpenPositions() {
		if ctx.Err() != nil {
			return
		}
		q, ok := e.quote(ctx, pos.Symbol)
		if !ok {
			continue
		}
		if !e.volumeSpiked(pos.Symbol, q.QuoteVolume24h) {
			continue
		}
		pnl, pct := pos.UnrealizedPnL(q.Price)
		view := oracle.PositionView{
			Symbol:        pos.Symbol,
			EntryPrice:    pos.EntryPrice,
			CurrentPrice:  q.Price,
			UnrealizedPct: pct,
			HoldDays:      pos.HoldDuration(e.now()).Hours() / 24,
		}
		assessment, ok := e.assessRisk(ctx, view)
		if !ok {
			continue
		}
		if assessment.Level == "HIGH" {
			logger.Warnf("analysis: %s flagged HIGH risk (pnl=%.2f): %s", pos.Symbol, pnl, assessment.Note)
		} else {
			logger.Infof("analysis: %s risk %s after volume spike", pos.Symbol, assessment.Level)
		}
	}
}

func (e *Engine) propose(ctx context.Context, snap oracle.MarketSnapshot) (oracle.Proposal, bool) {
	if !e.oracleBreaker.Allow() {
		return oracle.Proposal{}, false
	}
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	prop, err := e.oracle.Propose(cctx, snap)

	if e.audit != nil {
		req, _ := json.Marshal(snap)
		rec := auditlog.Record{
			Symbol:  snap.Symbol,
			Kind:    "propose",
			Request: string(req),
		}
		if err != nil {
			rec.Error = err.Error()
		} else {
			rec.RawOutput = prop.Raw
			rec.Action = prop.Action
			rec.Confidence = prop.Confidence
		}
		e.audit.Append(ctx, rec)
	}

	if err != nil {
		e.oracleBreaker.RecordFailure()
		logger.Errorf("analysis: oracle propose %s: %v", snap.Symbol, err)
		return oracle.Proposal{}, false
	}
	e.oracleBreaker.RecordSuccess()
	return prop, true
}

func (e *Engine) assessRisk(ctx context.Context, view oracle.PositionView) (oracle.RiskAssessment, bool) {
	if !e.oracleBreaker.Allow() {
		return oracle.RiskAssessment{}, false
	}
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	assessment, err := e.oracle.AssessRisk(cctx, view)

	if e.audit != nil {
		req, _ := json.Marshal(view)
		rec := auditlog.Record{Symbol: view.Symbol, Kind: "assess", Request: string(req)}
		if err != nil {
			rec.Error = err.Error()
		} else {
			rec.RawOutput = assessment.Raw
			rec.Action = assessment.Level
		}
		e.audit.Append(ctx, rec)
	}

	if err != nil {
		e.oracleBreaker.RecordFailure()
		logger.Warnf("analysis: oracle assess %s: %v", view.Symbol, err)
		return oracle.RiskAssessment{}, false
	}
	e.oracleBreaker.RecordSuccess()
	return assessment, true
}
