// Package symbol normalizes trading pair notation. The engine works in
// exchange form (ETHUSDT) throughout; user input may arrive as ETH/USDT or
// eth-usdt.
package symbol

import "strings"

var separators = strings.NewReplacer("/", "", "-", "", "_", "")

// Normalize converts any supported notation to uppercase exchange form.
func Normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return separators.Replace(s)
}

// Base strips the quote asset suffix, returning the base asset name.
// Base("DOGEUSDT", "USDT") == "DOGE".
func Base(sym, quote string) string {
	sym = Normalize(sym)
	quote = strings.ToUpper(strings.TrimSpace(quote))
	return strings.TrimSuffix(sym, quote)
}

// Pair joins a base asset and quote asset into exchange form.
func Pair(base, quote string) string {
	return strings.ToUpper(strings.TrimSpace(base)) + strings.ToUpper(strings.TrimSpace(quote))
}
