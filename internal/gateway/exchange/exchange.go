// Package exchange defines the broker-neutral trading surface. Concrete
// implementations live in sibling packages (binance, paper).
package exchange

import "context"

// Exchange is everything the engine needs from a spot venue. All calls take a
// context and are expected to respect its deadline; callers wrap them in
// circuit breakers and never hold engine locks across them.
type Exchange interface {
	// Name identifies the venue for logs and the API surface.
	Name() string

	// Balance returns the free quote-asset balance.
	Balance(ctx context.Context) (Balance, error)

	// Quote returns the latest price and 24h quote volume for a symbol.
	Quote(ctx context.Context, symbol string) (Quote, error)

	// MarketBuy spends quoteAmount of the quote asset at market.
	MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (OrderResult, error)

	// MarketSell sells quantity of the base asset at market.
	MarketSell(ctx context.Context, symbol string, quantity float64) (OrderResult, error)

	// Holdings lists non-quote asset balances for reconciliation.
	Holdings(ctx context.Context) ([]Holding, error)
}
