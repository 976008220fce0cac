package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloseQuantity(t *testing.T) {
	// fraction applies to the original size, not the remainder
	assert.InDelta(t, 500, CloseQuantity(1000, 1000, 0.5), 1e-9)
	assert.InDelta(t, 500, CloseQuantity(500, 1000, 0.5), 1e-9)

	// capped at what is still held
	assert.InDelta(t, 300, CloseQuantity(300, 1000, 0.5), 1e-9)

	// unknown original falls back to the remainder
	assert.InDelta(t, 250, CloseQuantity(500, 0, 0.5), 1e-9)

	assert.Zero(t, CloseQuantity(0, 1000, 0.5))
	assert.Zero(t, CloseQuantity(1000, 1000, 0))
	assert.Zero(t, CloseQuantity(-1, 1000, 0.5))
}
