package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinward/internal/risk"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePosition(tradeID, symbol string) risk.Position {
	return risk.Position{
		TradeID:    tradeID,
		Symbol:     symbol,
		EntryPrice: 0.10,
		Quantity:   1000,
		Remaining:  1000,
		EntryTime:  time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC),
		StopLoss:   0.092,
		Targets: []risk.TakeProfitTarget{
			{Price: 0.115, CloseFraction: 0.50},
			{Price: 0.130, CloseFraction: 0.50},
		},
		Status:     risk.StatusActive,
		Confidence: 85,
	}
}

func TestStoreRejectsEmptyPath(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestStoreMonthlyCounterSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coinward.db")
	ctx := context.Background()
	opened := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	s := openStore(t, path)
	require.NoError(t, s.Increment(ctx, "DOGEUSDT", opened))

	n, err := s.CountForMonth(ctx, "DOGEUSDT", 2026, time.March)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.Close())

	// a restart must still see the month as spent
	s = openStore(t, path)
	n, err = s.CountForMonth(ctx, "DOGEUSDT", 2026, time.March)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// other symbols and months stay untouched
	n, err = s.CountForMonth(ctx, "SHIBUSDT", 2026, time.March)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.CountForMonth(ctx, "DOGEUSDT", 2026, time.April)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreRiskStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coinward.db")
	ctx := context.Background()
	s := openStore(t, path)

	_, ok, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "fresh store should have no state")

	until := time.Date(2026, time.March, 11, 12, 0, 0, 0, time.UTC)
	state := risk.RiskState{
		Balance:             964,
		PeakBalance:         1020,
		DailyLoss:           36,
		DayStart:            time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		ConsecutiveLosses:   2,
		CircuitBreakerUntil: &until,
		MaxDrawdownPct:      5.49,
		ClosedPositions:     3,
		EntriesHalted:       true,
	}
	require.NoError(t, s.SaveState(ctx, state))

	// Save overwrites the single row rather than stacking history
	state.Balance = 980
	require.NoError(t, s.SaveState(ctx, state))
	require.NoError(t, s.Close())

	s = openStore(t, path)
	loaded, ok, err := s.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 980, loaded.Balance, 1e-9)
	assert.Equal(t, 2, loaded.ConsecutiveLosses)
	assert.True(t, loaded.EntriesHalted)
	require.NotNil(t, loaded.CircuitBreakerUntil)
	assert.True(t, loaded.CircuitBreakerUntil.Equal(until))
	assert.True(t, loaded.DayStart.Equal(state.DayStart))
}

func TestStoreOpenTradeLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coinward.db")
	ctx := context.Background()
	s := openStore(t, path)

	pos := samplePosition("t-1", "DOGEUSDT")
	require.NoError(t, s.RecordOpen(ctx, pos))

	rows, err := s.LoadOpen(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got := rows[0]
	assert.Equal(t, "t-1", got.TradeID)
	assert.InDelta(t, 0.10, got.EntryPrice, 1e-9)
	assert.True(t, got.EntryTime.Equal(pos.EntryTime))
	require.Len(t, got.Targets, 2)
	assert.InDelta(t, 0.115, got.Targets[0].Price, 1e-9)
	assert.InDelta(t, 0.50, got.Targets[1].CloseFraction, 1e-9)

	// first target fills half and raises the stop
	at := pos.EntryTime.Add(8 * 24 * time.Hour)
	require.NoError(t, s.RecordPartial(ctx, "t-1", 0.115, 500, 7.5, at))
	pos.Remaining = 500
	pos.StopLoss = 0.10
	pos.HighestPrice = 0.115
	pos.FirstTargetHit = true
	pos.StopTightened = true
	require.NoError(t, s.SaveAdjust(ctx, pos))
	require.NoError(t, s.Close())

	// a restart restores the half-closed phase exactly
	s = openStore(t, path)
	rows, err = s.LoadOpen(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got = rows[0]
	assert.InDelta(t, 500, got.Remaining, 1e-9)
	assert.InDelta(t, 7.5, got.RealizedPnL, 1e-9)
	assert.InDelta(t, 0.10, got.StopLoss, 1e-9)
	assert.True(t, got.FirstTargetHit)
	assert.True(t, got.StopTightened)

	require.NoError(t, s.RecordClose(ctx, risk.ClosedPosition{
		TradeID:    "t-1",
		Symbol:     "DOGEUSDT",
		EntryPrice: 0.10,
		ExitPrice:  0.13,
		Quantity:   1000,
		PnL:        22.5,
		PnLPct:     22.5,
		Reason:     risk.ReasonSecondTarget,
		ClosedAt:   at.Add(time.Hour),
	}))

	rows, err = s.LoadOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	closed, err := s.ClosedTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.InDelta(t, 22.5, closed[0].PnL, 1e-9)
	assert.Equal(t, string(risk.ReasonSecondTarget), closed[0].CloseReason)
}

func TestStoreClosedTradesNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coinward.db")
	ctx := context.Background()
	s := openStore(t, path)

	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"t-1", "t-2", "t-3"} {
		pos := samplePosition(id, "DOGEUSDT")
		require.NoError(t, s.RecordOpen(ctx, pos))
		require.NoError(t, s.RecordClose(ctx, risk.ClosedPosition{
			TradeID:  id,
			Symbol:   "DOGEUSDT",
			Reason:   risk.ReasonStopLoss,
			ClosedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	closed, err := s.ClosedTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, "t-3", closed[0].TradeID)
	assert.Equal(t, "t-2", closed[1].TradeID)
}
