// Package paper is an in-memory exchange for dry runs. Orders fill instantly
// at the last set price with no fees or slippage.
package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"coinward/internal/gateway/exchange"
	"coinward/internal/logger"
	symbolpkg "coinward/internal/pkg/symbol"
)

type Venue struct {
	mu       sync.Mutex
	quote    string
	balance  float64
	holdings map[string]float64 // base asset -> quantity
	quotes   map[string]exchange.Quote
	orderSeq int64
}

var _ exchange.Exchange = (*Venue)(nil)

func New(quoteAsset string, startingBalance float64) *Venue {
	quoteAsset = strings.ToUpper(strings.TrimSpace(quoteAsset))
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &Venue{
		quote:    quoteAsset,
		balance:  startingBalance,
		holdings: make(map[string]float64),
		quotes:   make(map[string]exchange.Quote),
	}
}

func (v *Venue) Name() string { return "paper" }

// SetQuote injects the market data the next Quote call returns.
func (v *Venue) SetQuote(symbol string, price, quoteVolume24h float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	symbol = symbolpkg.Normalize(symbol)
	v.quotes[symbol] = exchange.Quote{
		Symbol:         symbol,
		Price:          price,
		QuoteVolume24h: quoteVolume24h,
		At:             time.Now(),
	}
}

func (v *Venue) Balance(context.Context) (exchange.Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return exchange.Balance{Asset: v.quote, Free: v.balance, Total: v.balance}, nil
}

func (v *Venue) Quote(_ context.Context, symbol string) (exchange.Quote, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	q, ok := v.quotes[symbolpkg.Normalize(symbol)]
	if !ok {
		return exchange.Quote{}, fmt.Errorf("paper: no quote set for %s", symbol)
	}
	return q, nil
}

func (v *Venue) MarketBuy(_ context.Context, symbol string, quoteAmount float64) (exchange.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	symbol = symbolpkg.Normalize(symbol)
	q, ok := v.quotes[symbol]
	if !ok || q.Price <= 0 {
		return exchange.OrderResult{}, fmt.Errorf("paper: no quote set for %s", symbol)
	}
	if quoteAmount <= 0 || quoteAmount > v.balance {
		return exchange.OrderResult{}, fmt.Errorf("paper: buy %s for %.2f exceeds balance %.2f", symbol, quoteAmount, v.balance)
	}
	qty := quoteAmount / q.Price
	v.balance -= quoteAmount
	v.holdings[symbolpkg.Base(symbol, v.quote)] += qty
	res := v.fillLocked(symbol, exchange.SideBuy, qty, q.Price, quoteAmount)
	logger.Infof("paper: bought %.8f %s at %.8f", qty, symbol, q.Price)
	return res, nil
}

func (v *Venue) MarketSell(_ context.Context, symbol string, quantity float64) (exchange.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	symbol = symbolpkg.Normalize(symbol)
	q, ok := v.quotes[symbol]
	if !ok || q.Price <= 0 {
		return exchange.OrderResult{}, fmt.Errorf("paper: no quote set for %s", symbol)
	}
	base := symbolpkg.Base(symbol, v.quote)
	if quantity <= 0 || quantity > v.holdings[base] {
		return exchange.OrderResult{}, fmt.Errorf("paper: sell %.8f %s exceeds holding %.8f", quantity, symbol, v.holdings[base])
	}
	proceeds := quantity * q.Price
	v.holdings[base] -= quantity
	if v.holdings[base] <= 0 {
		delete(v.holdings, base)
	}
	v.balance += proceeds
	res := v.fillLocked(symbol, exchange.SideSell, quantity, q.Price, proceeds)
	logger.Infof("paper: sold %.8f %s at %.8f", quantity, symbol, q.Price)
	return res, nil
}

func (v *Venue) Holdings(context.Context) ([]exchange.Holding, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]exchange.Holding, 0, len(v.holdings))
	for asset, qty := range v.holdings {
		out = append(out, exchange.Holding{Asset: asset, Quantity: qty})
	}
	return out, nil
}

func (v *Venue) fillLocked(symbol string, side exchange.OrderSide, qty, price, quote float64) exchange.OrderResult {
	v.orderSeq++
	return exchange.OrderResult{
		OrderID:       fmt.Sprintf("paper-%d", v.orderSeq),
		Symbol:        symbol,
		Side:          side,
		ExecutedQty:   qty,
		AvgPrice:      price,
		QuoteSpentUSD: quote,
		FilledAt:      time.Now(),
	}
}
