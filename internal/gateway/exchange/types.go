package exchange

import "time"

// Balance is the free quote-currency balance of the trading account.
type Balance struct {
	Asset string
	Free  float64
	Total float64
}

// Quote is a point-in-time market snapshot for one symbol.
type Quote struct {
	Symbol         string
	Price          float64
	QuoteVolume24h float64 // 24h traded volume in quote currency (USD terms)
	At             time.Time
}

// Holding is a non-quote asset balance, used to reconcile the ledger against
// what the exchange actually holds.
type Holding struct {
	Asset    string
	Quantity float64
}

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderResult summarizes a filled market order.
type OrderResult struct {
	OrderID       string
	Symbol        string
	Side          OrderSide
	ExecutedQty   float64
	AvgPrice      float64
	QuoteSpentUSD float64
	FilledAt      time.Time
}
