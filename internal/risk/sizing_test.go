package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinward/internal/strategy"
)

func TestAllocatorSizeAppliesBufferAndFraction(t *testing.T) {
	a := NewAllocator(0.10)
	pol := strategy.Policy{PositionSizeFraction: 0.06}

	sz, err := a.Size(206.26, 0.115, pol)
	require.NoError(t, err)
	// usable 185.634, 6% of that is 11.13804
	assert.InDelta(t, 11.13804, sz.Notional, 1e-6)
	assert.InDelta(t, 11.13804/0.115, sz.Quantity, 1e-6)
}

func TestAllocatorSizeGoldilockFraction(t *testing.T) {
	a := NewAllocator(0.10)
	pol := strategy.Policy{PositionSizeFraction: 0.40}

	sz, err := a.Size(1000, 0.10, pol)
	require.NoError(t, err)
	assert.InDelta(t, 360, sz.Notional, 1e-9)
	assert.InDelta(t, 3600, sz.Quantity, 1e-9)
}

func TestAllocatorSizeClampsOversizedFraction(t *testing.T) {
	a := NewAllocator(0.10)
	pol := strategy.Policy{PositionSizeFraction: 1.2}

	sz, err := a.Size(1000, 2, pol)
	require.NoError(t, err)
	// notional 1080 exceeds the 900 usable, clamped to half of usable
	assert.InDelta(t, 450, sz.Notional, 1e-9)
	assert.InDelta(t, 225, sz.Quantity, 1e-9)
}

func TestAllocatorSizeRejectsBadPrice(t *testing.T) {
	a := NewAllocator(0.10)
	_, err := a.Size(1000, 0, strategy.Policy{PositionSizeFraction: 0.4})
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestAllocatorSizeZeroBalance(t *testing.T) {
	a := NewAllocator(0.10)
	sz, err := a.Size(0, 0.10, strategy.Policy{PositionSizeFraction: 0.4})
	require.NoError(t, err)
	assert.Zero(t, sz.Quantity)
}

func TestNewAllocatorDefaultsBadBuffer(t *testing.T) {
	assert.InDelta(t, 0.10, NewAllocator(0).BufferPct, 1e-9)
	assert.InDelta(t, 0.10, NewAllocator(1.5).BufferPct, 1e-9)
	assert.InDelta(t, 0.25, NewAllocator(0.25).BufferPct, 1e-9)
}
