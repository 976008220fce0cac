package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"coinward/internal/config"
	"coinward/internal/logger"
	"coinward/internal/strategy"
)

var (
	ErrPositionNotFound    = errors.New("risk: position not found")
	ErrPositionAlreadyOpen = errors.New("risk: position already open for symbol")
	ErrEntriesHalted       = errors.New("risk: entries halted pending reconciliation")
	ErrPositionClosed      = errors.New("risk: position already closed")
)

// TradeRecorder persists the trade journal. The ledger calls it under its own
// lock; implementations must not call back into the ledger.
type TradeRecorder interface {
	RecordOpen(ctx context.Context, pos Position) error
	RecordPartial(ctx context.Context, tradeID string, exitPrice, quantity, pnl float64, at time.Time) error
	RecordClose(ctx context.Context, closed ClosedPosition) error
	LoadOpen(ctx context.Context) ([]Position, error)
}

// StateStore persists the portfolio counters so the circuit breaker and
// daily-loss window survive restarts.
type StateStore interface {
	SaveState(ctx context.Context, state RiskState) error
	LoadState(ctx context.Context) (RiskState, bool, error)
}

// Ledger owns every open position and the portfolio risk counters. All state
// lives behind one mutex; callers get detached copies and commit mutations
// through the exported methods, never by reaching into a Position.
type Ledger struct {
	mu sync.Mutex

	cfg       config.RiskConfig
	validator *Validator
	recorder  TradeRecorder
	counter   MonthlyCounter
	states    StateStore

	positions map[string]*Position // keyed by symbol, ACTIVE only
	closed    []ClosedPosition
	state     RiskState

	nowFn func() time.Time
}

func NewLedger(cfg config.RiskConfig, validator *Validator, recorder TradeRecorder, counter MonthlyCounter, states StateStore) *Ledger {
	return &Ledger{
		cfg:       cfg,
		validator: validator,
		recorder:  recorder,
		counter:   counter,
		states:    states,
		positions: make(map[string]*Position),
		state: RiskState{
			TradingPaused: cfg.TradingPaused,
		},
		nowFn: time.Now,
	}
}

// Restore loads persisted counters and reopens surviving positions. Policies
// are re-resolved by symbol so a rules change takes effect across restarts.
func (l *Ledger) Restore(ctx context.Context, resolver *strategy.Resolver) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.states != nil {
		state, ok, err := l.states.LoadState(ctx)
		if err != nil {
			return fmt.Errorf("load risk state: %w", err)
		}
		if ok {
			state.TradingPaused = l.cfg.TradingPaused
			state.OpenPositions = 0
			l.state = state
		}
	}

	if l.recorder != nil {
		open, err := l.recorder.LoadOpen(ctx)
		if err != nil {
			return fmt.Errorf("load open trades: %w", err)
		}
		for i := range open {
			pos := open[i]
			if pos.Status != StatusActive || pos.Remaining <= 0 {
				continue
			}
			pol, err := resolver.Resolve(pos.Symbol)
			if err != nil {
				logger.Warnf("ledger: no policy for restored position %s, keeping persisted levels", pos.Symbol)
			} else {
				pos.Policy = pol
			}
			cp := pos
			l.positions[pos.Symbol] = &cp
		}
	}
	l.state.OpenPositions = len(l.positions)
	logger.Infof("ledger: restored %d open positions, balance $%.2f, consecutive losses %d",
		l.state.OpenPositions, l.state.Balance, l.state.ConsecutiveLosses)
	return nil
}

// SetNow overrides the clock, tests only.
func (l *Ledger) SetNow(fn func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nowFn = fn
}

// SetBalance records a fresh account balance and maintains the peak and
// drawdown figures.
func (l *Ledger) SetBalance(ctx context.Context, balance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(l.nowFn())
	l.trackBalanceLocked(balance)
	l.persistLocked(ctx)
}

// trackBalanceLocked moves the balance and keeps the peak and drawdown
// figures consistent with it.
func (l *Ledger) trackBalanceLocked(balance float64) {
	l.state.Balance = balance
	if balance > l.state.PeakBalance {
		l.state.PeakBalance = balance
	}
	if l.state.PeakBalance > 0 {
		dd := (l.state.PeakBalance - balance) / l.state.PeakBalance * 100
		if dd > l.state.MaxDrawdownPct {
			l.state.MaxDrawdownPct = dd
		}
	}
}

// Snapshot returns the current portfolio counters.
func (l *Ledger) Snapshot() RiskState {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(l.nowFn())
	s := l.state
	s.OpenPositions = len(l.positions)
	s.ClosedPositions = len(l.closed)
	return s
}

// GateEnv builds the environment the validator evaluates candidates against.
func (l *Ledger) GateEnv() GateEnv {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	l.rolloverLocked(now)
	return GateEnv{
		Now:                 now,
		Paused:              l.state.TradingPaused || l.state.EntriesHalted,
		CircuitBreakerUntil: l.state.CircuitBreakerUntil,
		OpenPositions:       len(l.positions),
		Balance:             l.state.Balance,
	}
}

// OpenPositions returns detached copies of every active position.
func (l *Ledger) OpenPositions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p.clone())
	}
	return out
}

// PositionBySymbol returns a detached copy, or false if no active position
// exists for the symbol.
func (l *Ledger) PositionBySymbol(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return p.clone(), true
}

// ClosedPositions returns the close history accumulated this process.
func (l *Ledger) ClosedPositions() []ClosedPosition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ClosedPosition(nil), l.closed...)
}

// Open admits a new position. The gates are re-run under the lock: the trader
// validates before placing the order, but the fill comes back after an
// unlocked window and the world may have moved.
func (l *Ledger) Open(ctx context.Context, cand Candidate, entryPrice float64, sz Sizing, pol strategy.Policy) (Position, Verdict, error) {
	if entryPrice <= 0 || sz.Quantity <= 0 {
		return Position{}, Verdict{}, ErrInvalidPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	l.rolloverLocked(now)

	if l.state.EntriesHalted {
		return Position{}, Verdict{}, ErrEntriesHalted
	}
	if _, exists := l.positions[cand.Symbol]; exists {
		return Position{}, Verdict{}, ErrPositionAlreadyOpen
	}

	env := GateEnv{
		Now:                 now,
		Paused:              l.state.TradingPaused,
		CircuitBreakerUntil: l.state.CircuitBreakerUntil,
		OpenPositions:       len(l.positions),
		Balance:             l.state.Balance,
	}
	verdict, err := l.validator.Validate(ctx, cand, env)
	if err != nil {
		return Position{}, Verdict{}, err
	}
	if !verdict.Approved {
		return Position{}, verdict, nil
	}

	pos := Position{
		TradeID:      uuid.NewString(),
		Symbol:       cand.Symbol,
		EntryPrice:   entryPrice,
		Quantity:     sz.Quantity,
		Remaining:    sz.Quantity,
		EntryTime:    now,
		StopLoss:     stopPrice(entryPrice, pol.InitialStopPct),
		Targets:      seedTargets(entryPrice, pol),
		HighestPrice: entryPrice,
		Status:       StatusActive,
		Confidence:   cand.Confidence,
		Policy:       pol,
	}
	l.positions[cand.Symbol] = &pos
	l.state.OpenPositions = len(l.positions)

	if l.counter != nil {
		if err := l.counter.Increment(ctx, cand.Symbol, now); err != nil {
			logger.Errorf("ledger: monthly counter increment failed for %s: %v", cand.Symbol, err)
		}
	}
	if l.recorder != nil {
		if err := l.recorder.RecordOpen(ctx, pos.clone()); err != nil {
			logger.Errorf("ledger: failed to journal open of %s: %v", pos.TradeID, err)
		}
	}
	l.persistLocked(ctx)

	logger.Infof("ledger: opened %s %s qty=%.8f entry=%.8f stop=%.8f",
		pos.TradeID, pos.Symbol, pos.Quantity, pos.EntryPrice, pos.StopLoss)
	return pos.clone(), verdict, nil
}

// ApplyAdjust commits the non-closing parts of an exit evaluation: stop
// tightening and trailing watermark raises. Safe to call with an empty action.
func (l *Ledger) ApplyAdjust(tradeID string, act Action) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.findLocked(tradeID)
	if pos == nil {
		return ErrPositionNotFound
	}
	l.adjustLocked(pos, act)
	return nil
}

func (l *Ledger) adjustLocked(pos *Position, act Action) {
	if act.TightenStop && !pos.StopTightened {
		logger.Infof("ledger: %s stop tightened %.8f -> %.8f", pos.Symbol, pos.StopLoss, act.NewStopLoss)
		pos.StopLoss = act.NewStopLoss
		pos.StopTightened = true
	}
	if act.RaiseWatermark && act.NewWatermark > pos.HighestPrice {
		pos.HighestPrice = act.NewWatermark
	}
	if act.ArmTrailing {
		pos.FirstTargetHit = true
	}
}

// PartialClose books quantity actually sold against the position, capped at
// the remainder. Callers pass the executed fill, not the requested amount, so
// the ledger never claims more was sold than the venue reports. Any
// accompanying adjustments in act (stop tighten, trailing arm) commit in the
// same critical section.
func (l *Ledger) PartialClose(ctx context.Context, tradeID string, exitPrice, quantity float64, act Action) (Position, error) {
	if exitPrice <= 0 || quantity <= 0 {
		return Position{}, ErrInvalidPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	l.rolloverLocked(now)

	pos := l.findLocked(tradeID)
	if pos == nil {
		return Position{}, ErrPositionNotFound
	}
	if pos.Status != StatusActive || pos.Remaining <= 0 {
		return Position{}, ErrPositionClosed
	}

	qty := quantity
	if qty > pos.Remaining {
		qty = pos.Remaining
	}

	pnl := (exitPrice - pos.EntryPrice) * qty
	pos.Remaining -= qty
	pos.RealizedPnL += pnl
	l.trackBalanceLocked(l.state.Balance + pnl)
	l.adjustLocked(pos, act)

	if l.recorder != nil {
		if err := l.recorder.RecordPartial(ctx, tradeID, exitPrice, qty, pnl, now); err != nil {
			logger.Errorf("ledger: failed to journal partial close of %s: %v", tradeID, err)
		}
	}
	l.persistLocked(ctx)

	logger.Infof("ledger: partial close %s %s qty=%.8f at %.8f pnl=%.2f remaining=%.8f",
		tradeID, pos.Symbol, qty, exitPrice, pnl, pos.Remaining)
	return pos.clone(), nil
}

// Close books the full close of a position and updates the loss counters and
// circuit breaker. Idempotent: a duplicate call for an already closed trade
// returns the original result unchanged.
func (l *Ledger) Close(ctx context.Context, tradeID string, exitPrice float64, reason CloseReason) (ClosedPosition, error) {
	if exitPrice <= 0 {
		return ClosedPosition{}, ErrInvalidPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	l.rolloverLocked(now)

	pos := l.findLocked(tradeID)
	if pos == nil {
		for i := range l.closed {
			if l.closed[i].TradeID == tradeID {
				return l.closed[i], nil
			}
		}
		return ClosedPosition{}, ErrPositionNotFound
	}
	if pos.closeResult != nil {
		return *pos.closeResult, nil
	}

	leg := (exitPrice - pos.EntryPrice) * pos.Remaining
	pnl := leg + pos.RealizedPnL
	pct := 0.0
	if pos.EntryPrice > 0 {
		pct = (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
	}
	closed := ClosedPosition{
		TradeID:    tradeID,
		Symbol:     pos.Symbol,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   pos.Quantity,
		PnL:        pnl,
		PnLPct:     pct,
		Reason:     reason,
		ClosedAt:   now,
	}

	pos.Remaining = 0
	pos.Status = StatusDust
	pos.closeResult = &closed
	delete(l.positions, pos.Symbol)
	l.closed = append(l.closed, closed)
	l.state.OpenPositions = len(l.positions)
	l.state.ClosedPositions = len(l.closed)

	// partial legs were credited as they filled, only the remainder settles here
	l.trackBalanceLocked(l.state.Balance + leg)
	l.settleLocked(closed, now)

	if l.recorder != nil {
		if err := l.recorder.RecordClose(ctx, closed); err != nil {
			logger.Errorf("ledger: failed to journal close of %s: %v", tradeID, err)
		}
	}
	l.persistLocked(ctx)

	logger.Infof("ledger: closed %s %s at %.8f pnl=%.2f (%.2f%%) reason=%s",
		tradeID, closed.Symbol, exitPrice, pnl, pct, reason)
	return closed, nil
}

// settleLocked updates the loss streak, the daily loss window, and arms the
// circuit breaker when either limit is breached.
func (l *Ledger) settleLocked(closed ClosedPosition, now time.Time) {
	if closed.PnL >= 0 {
		l.state.ConsecutiveLosses = 0
		return
	}

	l.state.ConsecutiveLosses++
	l.state.DailyLoss += -closed.PnL

	if l.cfg.ConsecutiveLossLimit > 0 && l.state.ConsecutiveLosses >= l.cfg.ConsecutiveLossLimit {
		until := now.Add(l.cfg.Cooldown())
		l.state.CircuitBreakerUntil = &until
		logger.Warnf("ledger: %d consecutive losses, circuit breaker armed until %s",
			l.state.ConsecutiveLosses, until.Format(time.RFC3339))
		return
	}

	overAbs := l.cfg.DailyMaxLossUSD > 0 && l.state.DailyLoss >= l.cfg.DailyMaxLossUSD
	overPct := l.cfg.DailyMaxLossPct > 0 && l.state.Balance > 0 &&
		l.state.DailyLoss >= l.state.Balance*l.cfg.DailyMaxLossPct/100
	if overAbs || overPct {
		until := startOfDay(now).Add(24 * time.Hour)
		l.state.CircuitBreakerUntil = &until
		logger.Warnf("ledger: daily loss $%.2f over limit, entries halted until %s",
			l.state.DailyLoss, until.Format(time.RFC3339))
	}
}

// FlagEntriesHalted blocks new entries until reconciliation succeeds. Exits
// keep running, losing protection on open positions would be worse than any
// bookkeeping drift.
func (l *Ledger) FlagEntriesHalted(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.EntriesHalted {
		logger.Errorf("ledger: entries halted: %s", reason)
	}
	l.state.EntriesHalted = true
}

// ClearEntriesHalted re-enables entries after a clean reconciliation pass.
func (l *Ledger) ClearEntriesHalted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.EntriesHalted {
		logger.Infof("ledger: entries re-enabled after reconciliation")
	}
	l.state.EntriesHalted = false
}

// SetPaused toggles the global trading pause at runtime.
func (l *Ledger) SetPaused(paused bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.TradingPaused = paused
}

// Adopt registers a position discovered on the exchange but missing from the
// ledger, typically after a crash between fill and journal. The position
// enters the normal exit lifecycle with the entry time set to now.
func (l *Ledger) Adopt(ctx context.Context, symbol string, quantity, entryPrice float64, pol strategy.Policy) (Position, error) {
	if entryPrice <= 0 || quantity <= 0 {
		return Position{}, ErrInvalidPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.positions[symbol]; exists {
		return Position{}, ErrPositionAlreadyOpen
	}

	now := l.nowFn()
	pos := Position{
		TradeID:      uuid.NewString(),
		Symbol:       symbol,
		EntryPrice:   entryPrice,
		Quantity:     quantity,
		Remaining:    quantity,
		EntryTime:    now,
		StopLoss:     stopPrice(entryPrice, pol.InitialStopPct),
		Targets:      seedTargets(entryPrice, pol),
		HighestPrice: entryPrice,
		Status:       StatusActive,
		Policy:       pol,
	}
	l.positions[symbol] = &pos
	l.state.OpenPositions = len(l.positions)

	if l.recorder != nil {
		if err := l.recorder.RecordOpen(ctx, pos.clone()); err != nil {
			logger.Errorf("ledger: failed to journal adopted position %s: %v", pos.TradeID, err)
		}
	}
	l.persistLocked(ctx)

	logger.Warnf("ledger: adopted untracked holding %s qty=%.8f at %.8f", symbol, quantity, entryPrice)
	return pos.clone(), nil
}

func (l *Ledger) findLocked(tradeID string) *Position {
	for _, p := range l.positions {
		if p.TradeID == tradeID {
			return p
		}
	}
	return nil
}

// rolloverLocked resets the daily loss window when the UTC day changes.
func (l *Ledger) rolloverLocked(now time.Time) {
	day := startOfDay(now)
	if l.state.DayStart.IsZero() || day.After(l.state.DayStart) {
		l.state.DayStart = day
		l.state.DailyLoss = 0
	}
}

func (l *Ledger) persistLocked(ctx context.Context) {
	if l.states == nil {
		return
	}
	if err := l.states.SaveState(ctx, l.state); err != nil {
		logger.Errorf("ledger: failed to persist risk state: %v", err)
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
