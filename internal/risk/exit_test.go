package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinward/internal/strategy"
)

func goldilockPolicy() strategy.Policy {
	return strategy.Policy{
		Name:           "goldilock",
		MinHold:        7 * 24 * time.Hour,
		MaxHold:        90 * 24 * time.Hour,
		InitialStopPct: 0.08,
		RegularStopPct: 0.03,
		Targets: []strategy.Target{
			{OffsetPct: 0.15, CloseFraction: 0.50},
			{OffsetPct: 0.30, CloseFraction: 0.50},
		},
		TrailingStopPct:      0.05,
		PositionSizeFraction: 0.40,
		MaxTradesPerMonth:    1,
	}
}

func testPosition(entry float64, pol strategy.Policy, held time.Duration, now time.Time) Position {
	return Position{
		TradeID:      "t-1",
		Symbol:       "DOGEUSDT",
		EntryPrice:   entry,
		Quantity:     1000,
		Remaining:    1000,
		EntryTime:    now.Add(-held),
		StopLoss:     stopPrice(entry, pol.InitialStopPct),
		Targets:      seedTargets(entry, pol),
		HighestPrice: entry,
		Status:       StatusActive,
		Policy:       pol,
	}
}

func TestEvaluateExitSkipsBadTicks(t *testing.T) {
	now := time.Now()
	pos := testPosition(0.10, goldilockPolicy(), 10*24*time.Hour, now)

	assert.Equal(t, Action{}, EvaluateExit(pos, 0, now))
	assert.Equal(t, Action{}, EvaluateExit(pos, -1, now))

	dust := pos
	dust.Status = StatusDust
	dust.Remaining = 0
	assert.Equal(t, Action{}, EvaluateExit(dust, 0.05, now))
}

func TestEvaluateExitMinHoldShieldsRegularStop(t *testing.T) {
	now := time.Now()
	pos := testPosition(0.10, goldilockPolicy(), 3*24*time.Hour, now)

	// below the 3% regular stop but above the 8% initial stop: shielded
	act := EvaluateExit(pos, 0.095, now)
	assert.Equal(t, ActionNone, act.Type)
	assert.False(t, act.TightenStop)

	// the wide stop still protects against a real crash
	act = EvaluateExit(pos, 0.0919, now)
	require.Equal(t, ActionCloseFull, act.Type)
	assert.Equal(t, ReasonEarlyStopLoss, act.Reason)
}

func TestEvaluateExitTightensStopAtBoundary(t *testing.T) {
	now := time.Now()
	pos := testPosition(0.10, goldilockPolicy(), 8*24*time.Hour, now)

	act := EvaluateExit(pos, 0.10, now)
	assert.Equal(t, ActionNone, act.Type)
	require.True(t, act.TightenStop)
	assert.InDelta(t, 0.097, act.NewStopLoss, 1e-9)
}

func TestEvaluateExitTightenedStopFiresSameTick(t *testing.T) {
	now := time.Now()
	pos := testPosition(0.10, goldilockPolicy(), 8*24*time.Hour, now)

	// price is already under the tightened stop on the very tick it tightens
	act := EvaluateExit(pos, 0.095, now)
	require.Equal(t, ActionCloseFull, act.Type)
	assert.Equal(t, ReasonStopLoss, act.Reason)
	assert.True(t, act.TightenStop)
}

func TestEvaluateExitTightensOnlyOnce(t *testing.T) {
	now := time.Now()
	pos := testPosition(0.10, goldilockPolicy(), 8*24*time.Hour, now)
	pos.StopTightened = true
	pos.StopLoss = 0.097

	act := EvaluateExit(pos, 0.10, now)
	assert.False(t, act.TightenStop)
}

func TestEvaluateExitFirstTargetPartialAndArmsTrailing(t *testing.T) {
	now := time.Now()
	pos := testPosition(0.10, goldilockPolicy(), 8*24*time.Hour, now)
	pos.StopTightened = true
	pos.StopLoss = 0.097

	act := EvaluateExit(pos, 0.115, now)
	require.Equal(t, ActionClosePartial, act.Type)
	assert.Equal(t, ReasonFirstTarget, act.Reason)
	assert.InDelta(t, 0.50, act.Fraction, 1e-9)
	assert.True(t, act.ArmTrailing)
	assert.True(t, act.RaiseWatermark)
	assert.InDelta(t, 0.115, act.NewWatermark, 1e-9)
}

func TestEvaluateExitFirstTargetDoesNotRefire(t *testing.T) {
	now := time.Now()
	pos := testPosition(0.10, goldilockPolicy(), 8*24*time.Hour, now)
	pos.FirstTargetHit = true
	pos.StopTightened = true
	pos.StopLoss = 0.097
	pos.HighestPrice = 0.116
	pos.Remaining = 500

	// oscillating back through the first target must not produce another partial
	act := EvaluateExit(pos, 0.115, now)
	assert.NotEqual(t, ActionClosePartial, act.Type)
}

func TestEvaluateExitTrailingStop(t *testing.T) {
	now := time.Now()
	pol := goldilockPolicy()
	pol.Targets = pol.Targets[:1] // no second target in the way
	pos := testPosition(0.10, pol, 20*24*time.Hour, now)
	pos.FirstTargetHit = true
	pos.StopTightened = true
	pos.StopLoss = 0.097
	pos.HighestPrice = 0.1450
	pos.Remaining = 500

	// watermark 0.1450, 5% trail puts the stop at 0.13775
	act := EvaluateExit(pos, 0.1380, now)
	assert.Equal(t, ActionNone, act.Type)

	act = EvaluateExit(pos, 0.13775, now)
	require.Equal(t, ActionCloseFull, act.Type)
	assert.Equal(t, ReasonTrailingStop, act.Reason)
}

func TestEvaluateExitTrailingRaisesWatermark(t *testing.T) {
	now := time.Now()
	pol := goldilockPolicy()
	pol.Targets = pol.Targets[:1]
	pos := testPosition(0.10, pol, 20*24*time.Hour, now)
	pos.FirstTargetHit = true
	pos.StopTightened = true
	pos.StopLoss = 0.097
	pos.HighestPrice = 0.120
	pos.Remaining = 500

	act := EvaluateExit(pos, 0.125, now)
	assert.Equal(t, ActionNone, act.Type)
	require.True(t, act.RaiseWatermark)
	assert.InDelta(t, 0.125, act.NewWatermark, 1e-9)
}

func TestEvaluateExitSecondTargetClosesRemainder(t *testing.T) {
	now := time.Now()
	pos := testPosition(0.10, goldilockPolicy(), 20*24*time.Hour, now)
	pos.FirstTargetHit = true
	pos.StopTightened = true
	pos.StopLoss = 0.097
	pos.HighestPrice = 0.125
	pos.Remaining = 500

	act := EvaluateExit(pos, 0.130, now)
	require.Equal(t, ActionCloseFull, act.Type)
	assert.Equal(t, ReasonSecondTarget, act.Reason)
}

func TestEvaluateExitMaxHoldIsUnconditional(t *testing.T) {
	now := time.Now()
	pos := testPosition(0.10, goldilockPolicy(), 91*24*time.Hour, now)

	// even a winning position goes at the max hold
	act := EvaluateExit(pos, 0.14, now)
	require.Equal(t, ActionCloseFull, act.Type)
	assert.Equal(t, ReasonMaxHoldExceeded, act.Reason)

	act = EvaluateExit(pos, 0.05, now)
	assert.Equal(t, ReasonMaxHoldExceeded, act.Reason)
}
