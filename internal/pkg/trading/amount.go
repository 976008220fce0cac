// Package trading provides trading calculation utilities.
package trading

// CloseQuantity computes the quantity to sell for a partial close. The
// fraction is applied to the original position quantity and the result is
// capped at what is still held.
func CloseQuantity(remaining, original, fraction float64) float64 {
	if remaining <= 0 || fraction <= 0 {
		return 0
	}

	base := original
	if base <= 0 {
		base = remaining
	}

	qty := base * fraction
	if qty > remaining {
		qty = remaining
	}
	return qty
}
