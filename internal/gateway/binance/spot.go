// Package binance implements exchange.Exchange against the Binance spot API
// using the go-binance SDK.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"coinward/internal/gateway/exchange"
	symbolpkg "coinward/internal/pkg/symbol"
)

type Spot struct {
	cfg    Config
	client *binance.Client
}

var _ exchange.Exchange = (*Spot)(nil)

func New(cfg Config) *Spot {
	final := cfg.withDefaults()
	client := binance.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Spot{cfg: final, client: client}
}

func (s *Spot) Name() string { return "binance" }

func (s *Spot) Balance(ctx context.Context) (exchange.Balance, error) {
	acct, err := s.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return exchange.Balance{}, fmt.Errorf("binance account: %w", err)
	}
	for _, b := range acct.Balances {
		if strings.EqualFold(b.Asset, s.cfg.QuoteAsset) {
			free := parseFloat(b.Free)
			return exchange.Balance{
				Asset: s.cfg.QuoteAsset,
				Free:  free,
				Total: free + parseFloat(b.Locked),
			}, nil
		}
	}
	return exchange.Balance{Asset: s.cfg.QuoteAsset}, nil
}

func (s *Spot) Quote(ctx context.Context, symbol string) (exchange.Quote, error) {
	symbol = symbolpkg.Normalize(symbol)
	stats, err := s.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return exchange.Quote{}, fmt.Errorf("binance 24h stats for %s: %w", symbol, err)
	}
	if len(stats) == 0 || stats[0] == nil {
		return exchange.Quote{}, fmt.Errorf("binance 24h stats for %s: empty response", symbol)
	}
	st := stats[0]
	price := parseFloat(st.LastPrice)
	if price <= 0 {
		return exchange.Quote{}, fmt.Errorf("binance quote for %s: non-positive price %q", symbol, st.LastPrice)
	}
	return exchange.Quote{
		Symbol:         symbol,
		Price:          price,
		QuoteVolume24h: parseFloat(st.QuoteVolume),
		At:             time.Now(),
	}, nil
}

// MarketBuy spends quoteAmount of the quote asset. Binance handles the
// quantity rounding when ordering by quote amount.
func (s *Spot) MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (exchange.OrderResult, error) {
	if quoteAmount <= 0 {
		return exchange.OrderResult{}, fmt.Errorf("binance buy %s: non-positive quote amount", symbol)
	}
	symbol = symbolpkg.Normalize(symbol)
	resp, err := s.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(formatAmount(quoteAmount)).
		Do(ctx)
	if err != nil {
		return exchange.OrderResult{}, fmt.Errorf("binance buy %s: %w", symbol, err)
	}
	return convertOrder(symbol, exchange.SideBuy, resp), nil
}

func (s *Spot) MarketSell(ctx context.Context, symbol string, quantity float64) (exchange.OrderResult, error) {
	if quantity <= 0 {
		return exchange.OrderResult{}, fmt.Errorf("binance sell %s: non-positive quantity", symbol)
	}
	symbol = symbolpkg.Normalize(symbol)
	resp, err := s.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(formatAmount(quantity)).
		Do(ctx)
	if err != nil {
		return exchange.OrderResult{}, fmt.Errorf("binance sell %s: %w", symbol, err)
	}
	return convertOrder(symbol, exchange.SideSell, resp), nil
}

func (s *Spot) Holdings(ctx context.Context) ([]exchange.Holding, error) {
	acct, err := s.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance account: %w", err)
	}
	out := make([]exchange.Holding, 0, len(acct.Balances))
	for _, b := range acct.Balances {
		if strings.EqualFold(b.Asset, s.cfg.QuoteAsset) {
			continue
		}
		qty := parseFloat(b.Free) + parseFloat(b.Locked)
		if qty <= 0 {
			continue
		}
		out = append(out, exchange.Holding{Asset: strings.ToUpper(b.Asset), Quantity: qty})
	}
	return out, nil
}

func convertOrder(symbol string, side exchange.OrderSide, resp *binance.CreateOrderResponse) exchange.OrderResult {
	executed := parseFloat(resp.ExecutedQuantity)
	quote := parseFloat(resp.CummulativeQuoteQuantity)
	avg := 0.0
	if executed > 0 {
		avg = quote / executed
	}
	return exchange.OrderResult{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		Symbol:        symbol,
		Side:          side,
		ExecutedQty:   executed,
		AvgPrice:      avg,
		QuoteSpentUSD: quote,
		FilledAt:      time.UnixMilli(resp.TransactTime),
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
