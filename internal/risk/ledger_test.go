package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinward/internal/config"
	"coinward/internal/strategy"
)

type fakeRecorder struct {
	opens    []Position
	partials int
	closes   []ClosedPosition
	openRows []Position
}

func (f *fakeRecorder) RecordOpen(_ context.Context, pos Position) error {
	f.opens = append(f.opens, pos)
	return nil
}

func (f *fakeRecorder) RecordPartial(_ context.Context, _ string, _, _, _ float64, _ time.Time) error {
	f.partials++
	return nil
}

func (f *fakeRecorder) RecordClose(_ context.Context, closed ClosedPosition) error {
	f.closes = append(f.closes, closed)
	return nil
}

func (f *fakeRecorder) LoadOpen(context.Context) ([]Position, error) {
	return f.openRows, nil
}

type fakeStates struct {
	saved  []RiskState
	stored *RiskState
}

func (f *fakeStates) SaveState(_ context.Context, state RiskState) error {
	f.saved = append(f.saved, state)
	return nil
}

func (f *fakeStates) LoadState(context.Context) (RiskState, bool, error) {
	if f.stored == nil {
		return RiskState{}, false, nil
	}
	return *f.stored, true, nil
}

type ledgerFixture struct {
	ledger   *Ledger
	recorder *fakeRecorder
	counter  *fakeCounter
	states   *fakeStates
	now      time.Time
}

func newLedgerFixture(t *testing.T, cfg config.RiskConfig) *ledgerFixture {
	t.Helper()
	recorder := &fakeRecorder{}
	counter := &fakeCounter{}
	states := &fakeStates{}
	l := NewLedger(cfg, NewValidator(cfg, counter), recorder, counter, states)

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	fx := &ledgerFixture{ledger: l, recorder: recorder, counter: counter, states: states, now: now}
	l.SetNow(func() time.Time { return fx.now })
	l.SetBalance(context.Background(), 1000)
	return fx
}

func (fx *ledgerFixture) open(t *testing.T, symbol string, entry float64) Position {
	t.Helper()
	cand := passingCandidate()
	cand.Symbol = symbol
	pos, verdict, err := fx.ledger.Open(context.Background(), cand, entry,
		Sizing{Quantity: 1000, Notional: entry * 1000}, goldilockPolicy())
	require.NoError(t, err)
	require.True(t, verdict.Approved, "verdict: %+v", verdict)
	return pos
}

func TestLedgerOpenSeedsPosition(t *testing.T) {
	fx := newLedgerFixture(t, testRiskConfig())
	pos := fx.open(t, "DOGEUSDT", 0.10)

	assert.NotEmpty(t, pos.TradeID)
	assert.InDelta(t, 0.092, pos.StopLoss, 1e-9)
	require.Len(t, pos.Targets, 2)
	assert.InDelta(t, 0.115, pos.Targets[0].Price, 1e-9)
	assert.InDelta(t, 0.130, pos.Targets[1].Price, 1e-9)
	assert.Equal(t, StatusActive, pos.Status)

	assert.Equal(t, 1, fx.counter.incs)
	require.Len(t, fx.recorder.opens, 1)
	assert.Equal(t, 1, fx.ledger.Snapshot().OpenPositions)
}

func TestLedgerOpenRejectsSecondPositionSameSymbol(t *testing.T) {
	fx := newLedgerFixture(t, testRiskConfig())
	fx.open(t, "DOGEUSDT", 0.10)

	cand := passingCandidate()
	_, _, err := fx.ledger.Open(context.Background(), cand, 0.11,
		Sizing{Quantity: 100, Notional: 11}, goldilockPolicy())
	assert.ErrorIs(t, err, ErrPositionAlreadyOpen)
}

func TestLedgerOpenReturnsGateVerdict(t *testing.T) {
	fx := newLedgerFixture(t, testRiskConfig())
	cand := passingCandidate()
	cand.Confidence = 50

	_, verdict, err := fx.ledger.Open(context.Background(), cand, 0.10,
		Sizing{Quantity: 1000, Notional: 100}, goldilockPolicy())
	require.NoError(t, err)
	assert.False(t, verdict.Approved)
	assert.Equal(t, ReasonLowConfidence, verdict.Reason)
	assert.Zero(t, fx.ledger.Snapshot().OpenPositions)
}

func TestLedgerOpenBlockedWhileEntriesHalted(t *testing.T) {
	fx := newLedgerFixture(t, testRiskConfig())
	fx.ledger.FlagEntriesHalted("drift")

	cand := passingCandidate()
	_, _, err := fx.ledger.Open(context.Background(), cand, 0.10,
		Sizing{Quantity: 1000, Notional: 100}, goldilockPolicy())
	assert.ErrorIs(t, err, ErrEntriesHalted)

	fx.ledger.ClearEntriesHalted()
	fx.open(t, "DOGEUSDT", 0.10)
}

func TestLedgerCloseIsIdempotent(t *testing.T) {
	fx := newLedgerFixture(t, testRiskConfig())
	pos := fx.open(t, "DOGEUSDT", 0.10)

	first, err := fx.ledger.Close(context.Background(), pos.TradeID, 0.12, ReasonSecondTarget)
	require.NoError(t, err)
	again, err := fx.ledger.Close(context.Background(), pos.TradeID, 0.05, ReasonStopLoss)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Len(t, fx.ledger.ClosedPositions(), 1)
	assert.Len(t, fx.recorder.closes, 1)
	assert.InDelta(t, 20, first.PnL, 1e-9)
	assert.InDelta(t, 20, first.PnLPct, 1e-9)

	// settling credits the P&L once, and only once
	state := fx.ledger.Snapshot()
	assert.InDelta(t, 1020, state.Balance, 1e-9)
	assert.InDelta(t, 1020, state.PeakBalance, 1e-9)
}

func TestLedgerPartialCloseAccounting(t *testing.T) {
	fx := newLedgerFixture(t, testRiskConfig())
	pos := fx.open(t, "DOGEUSDT", 0.10)

	act := Action{
		Type:           ActionClosePartial,
		Reason:         ReasonFirstTarget,
		Fraction:       0.50,
		ArmTrailing:    true,
		RaiseWatermark: true,
		NewWatermark:   0.115,
	}
	updated, err := fx.ledger.PartialClose(context.Background(), pos.TradeID, 0.115, 500, act)
	require.NoError(t, err)

	assert.InDelta(t, 500, updated.Remaining, 1e-9)
	assert.True(t, updated.FirstTargetHit)
	assert.InDelta(t, 0.115, updated.HighestPrice, 1e-9)
	assert.InDelta(t, 7.5, updated.RealizedPnL, 1e-9) // 500 * 0.015
	assert.Equal(t, 1, fx.recorder.partials)
	assert.InDelta(t, 1007.5, fx.ledger.Snapshot().Balance, 1e-9)

	// remainder closes at 0.13: 500*0.03 + 7.5 realized
	closed, err := fx.ledger.Close(context.Background(), pos.TradeID, 0.13, ReasonSecondTarget)
	require.NoError(t, err)
	assert.InDelta(t, 22.5, closed.PnL, 1e-9)
	assert.InDelta(t, 1022.5, fx.ledger.Snapshot().Balance, 1e-9)
}

func TestLedgerPartialCloseBooksExecutedQuantity(t *testing.T) {
	fx := newLedgerFixture(t, testRiskConfig())
	pos := fx.open(t, "DOGEUSDT", 0.10)

	act := Action{
		Type:     ActionClosePartial,
		Reason:   ReasonFirstTarget,
		Fraction: 0.50,
	}
	// the venue filled 300 of the 500 requested
	updated, err := fx.ledger.PartialClose(context.Background(), pos.TradeID, 0.115, 300, act)
	require.NoError(t, err)

	assert.InDelta(t, 700, updated.Remaining, 1e-9)
	assert.InDelta(t, 4.5, updated.RealizedPnL, 1e-9) // 300 * 0.015
	assert.InDelta(t, 1004.5, fx.ledger.Snapshot().Balance, 1e-9)

	// an over-reported fill is clamped to what is actually held
	updated, err = fx.ledger.PartialClose(context.Background(), pos.TradeID, 0.115, 900, act)
	require.NoError(t, err)
	assert.Zero(t, updated.Remaining)
}

func TestLedgerConsecutiveLossesArmBreaker(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxOpenPositions = 5
	cfg.DailyMaxLossUSD = 10_000 // keep the daily limit out of the way
	cfg.DailyMaxLossPct = 0
	fx := newLedgerFixture(t, cfg)

	symbols := []string{"DOGEUSDT", "SHIBUSDT", "SOLUSDT"}
	for i, sym := range symbols {
		pos := fx.open(t, sym, 0.10)
		_, err := fx.ledger.Close(context.Background(), pos.TradeID, 0.099, ReasonStopLoss)
		require.NoError(t, err)

		state := fx.ledger.Snapshot()
		assert.Equal(t, i+1, state.ConsecutiveLosses)
	}

	state := fx.ledger.Snapshot()
	require.NotNil(t, state.CircuitBreakerUntil)
	assert.Equal(t, fx.now.Add(24*time.Hour), *state.CircuitBreakerUntil)

	cand := passingCandidate()
	cand.Symbol = "PEPEUSDT"
	_, verdict, err := fx.ledger.Open(context.Background(), cand, 0.10,
		Sizing{Quantity: 100, Notional: 10}, goldilockPolicy())
	require.NoError(t, err)
	assert.Equal(t, ReasonCircuitBreakerActive, verdict.Reason)

	// the breaker expires on its own
	fx.now = fx.now.Add(25 * time.Hour)
	assert.False(t, fx.ledger.Snapshot().BreakerActive(fx.now))
}

func TestLedgerWinResetsLossStreak(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxOpenPositions = 5
	fx := newLedgerFixture(t, cfg)

	pos := fx.open(t, "DOGEUSDT", 0.10)
	_, err := fx.ledger.Close(context.Background(), pos.TradeID, 0.09, ReasonStopLoss)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.ledger.Snapshot().ConsecutiveLosses)

	pos = fx.open(t, "SHIBUSDT", 0.10)
	_, err = fx.ledger.Close(context.Background(), pos.TradeID, 0.12, ReasonSecondTarget)
	require.NoError(t, err)
	assert.Zero(t, fx.ledger.Snapshot().ConsecutiveLosses)
}

func TestLedgerDailyLossBreakerAndRollover(t *testing.T) {
	cfg := testRiskConfig()
	cfg.ConsecutiveLossLimit = 10
	fx := newLedgerFixture(t, cfg)

	pos := fx.open(t, "DOGEUSDT", 0.25)
	// 1000 units dropping 0.15 each loses $150, past the $100 daily limit
	_, err := fx.ledger.Close(context.Background(), pos.TradeID, 0.10, ReasonStopLoss)
	require.NoError(t, err)

	state := fx.ledger.Snapshot()
	assert.InDelta(t, 150, state.DailyLoss, 1e-6)
	require.NotNil(t, state.CircuitBreakerUntil)
	nextDay := time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, nextDay, *state.CircuitBreakerUntil)

	// the window resets at the UTC day boundary
	fx.now = nextDay.Add(time.Minute)
	assert.Zero(t, fx.ledger.Snapshot().DailyLoss)
}

func TestLedgerSetBalanceTracksPeakAndDrawdown(t *testing.T) {
	fx := newLedgerFixture(t, testRiskConfig())
	ctx := context.Background()

	fx.ledger.SetBalance(ctx, 1200)
	fx.ledger.SetBalance(ctx, 900)

	state := fx.ledger.Snapshot()
	assert.InDelta(t, 1200, state.PeakBalance, 1e-9)
	assert.InDelta(t, 25, state.MaxDrawdownPct, 1e-9)
	assert.NotEmpty(t, fx.states.saved)
}

func TestLedgerRestoreRebindsPolicies(t *testing.T) {
	recorder := &fakeRecorder{openRows: []Position{{
		TradeID:    "t-9",
		Symbol:     "DOGEUSDT",
		EntryPrice: 0.10,
		Quantity:   1000,
		Remaining:  500,
		EntryTime:  time.Now().Add(-48 * time.Hour),
		StopLoss:   0.097,
		Status:     StatusActive,
	}}}
	counter := &fakeCounter{}
	states := &fakeStates{stored: &RiskState{Balance: 800, ConsecutiveLosses: 2}}
	cfg := testRiskConfig()
	l := NewLedger(cfg, NewValidator(cfg, counter), recorder, counter, states)

	resolver, err := strategy.NewResolver("", false)
	require.NoError(t, err)
	require.NoError(t, l.Restore(context.Background(), resolver))

	state := l.Snapshot()
	assert.Equal(t, 1, state.OpenPositions)
	assert.Equal(t, 2, state.ConsecutiveLosses)
	assert.InDelta(t, 800, state.Balance, 1e-9)

	pos, ok := l.PositionBySymbol("DOGEUSDT")
	require.True(t, ok)
	assert.Equal(t, "goldilock", pos.Policy.Name)
}
