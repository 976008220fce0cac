package risk

import (
	"errors"

	"coinward/internal/logger"
	"coinward/internal/strategy"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrice is returned when sizing is attempted against a non-positive
// price. No quantity is computed in that case.
var ErrInvalidPrice = errors.New("risk: invalid price for sizing")

// Sizing is the allocator's output: order quantity and its notional value.
type Sizing struct {
	Quantity float64
	Notional float64
}

// Allocator turns free balance into a capital-bounded order size. A fixed
// fraction of balance is always held back for fees and slippage.
type Allocator struct {
	BufferPct float64
}

func NewAllocator(bufferPct float64) Allocator {
	if bufferPct <= 0 || bufferPct >= 1 {
		bufferPct = 0.10
	}
	return Allocator{BufferPct: bufferPct}
}

// Size computes the order for the given balance, price, and policy. The
// notional never exceeds the usable balance: if rounding pushes it over, the
// order is clamped to half the usable balance instead of failing the trade.
func (a Allocator) Size(balance, price float64, pol strategy.Policy) (Sizing, error) {
	if price <= 0 {
		return Sizing{}, ErrInvalidPrice
	}
	if balance <= 0 {
		return Sizing{}, nil
	}

	bal := decFromFloat(balance)
	usable := bal.Mul(decOne.Sub(decFromFloat(a.BufferPct)))
	notional := usable.Mul(decFromFloat(pol.PositionSizeFraction))

	if notional.Cmp(usable) > 0 {
		clamped := usable.Mul(decimal.NewFromFloat(0.5))
		logger.Warnf("allocator: notional $%s exceeds usable balance $%s, clamping to $%s",
			notional.StringFixed(2), usable.StringFixed(2), clamped.StringFixed(2))
		notional = clamped
	}

	quantity := notional.Div(decFromFloat(price))
	return Sizing{
		Quantity: decToFloat(quantity),
		Notional: decToFloat(notional),
	}, nil
}
