package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"coinward/internal/config"
	"coinward/internal/gateway/binance"
	"coinward/internal/gateway/exchange"
	"coinward/internal/gateway/paper"
	"coinward/internal/logger"
	"coinward/internal/oracle"
	"coinward/internal/risk"
	"coinward/internal/store"
	"coinward/internal/store/auditlog"
	"coinward/internal/strategy"
	"coinward/internal/trader"
	apihttp "coinward/internal/transport/http"
)

type AppBuilder struct {
	cfg *config.Config

	exchangeFn func(config.ExchangeConfig) (exchange.Exchange, error)
	oracleFn   func(config.OracleConfig) oracle.Oracle

	storeOverride trader.AdjustJournal
}

type AppBuilderOption func(*AppBuilder)

// WithExchange swaps the venue constructor, tests use it to inject fakes.
func WithExchange(fn func(config.ExchangeConfig) (exchange.Exchange, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.exchangeFn = fn }
}

func WithOracle(fn func(config.OracleConfig) oracle.Oracle) AppBuilderOption {
	return func(b *AppBuilder) { b.oracleFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		exchangeFn: buildExchange,
		oracleFn:   buildOracle,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	resolver, err := strategy.NewResolver(cfg.Strategy.RulesPath, cfg.Strategy.AllowFallback)
	if err != nil {
		return nil, fmt.Errorf("load strategy rules: %w", err)
	}
	logger.Infof("loaded exit policies for %d symbols", len(resolver.Symbols()))

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open trade store: %w", err)
	}

	audit, err := auditlog.New(auditPath(cfg.Store.Path))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	validator := risk.NewValidator(cfg.Risk, st)
	ledger := risk.NewLedger(cfg.Risk, validator, st, st, st)
	if err := ledger.Restore(ctx, resolver); err != nil {
		st.Close()
		audit.Close()
		return nil, fmt.Errorf("restore ledger: %w", err)
	}

	exch, err := b.exchangeFn(cfg.Exchange)
	if err != nil {
		st.Close()
		audit.Close()
		return nil, fmt.Errorf("build exchange: %w", err)
	}
	logger.Infof("exchange gateway ready (%s)", exch.Name())

	orc := b.oracleFn(cfg.Oracle)
	allocator := risk.NewAllocator(cfg.Risk.BalanceBufferPct)
	engine := trader.NewEngine(*cfg, ledger, validator, allocator, resolver, exch, orc, audit, st)

	router := apihttp.NewRouter(ledger, audit)
	server, err := apihttp.NewServer(apihttp.ServerConfig{Addr: cfg.App.HTTPAddr, Router: router})
	if err != nil {
		st.Close()
		audit.Close()
		return nil, fmt.Errorf("build http server: %w", err)
	}

	return &App{
		cfg:    cfg,
		engine: engine,
		server: server,
		store:  st,
		audit:  audit,
	}, nil
}

func buildExchange(cfg config.ExchangeConfig) (exchange.Exchange, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "binance", "":
		return binance.New(binance.Config{
			APIKey:      cfg.APIKey,
			APISecret:   cfg.APISecret,
			RESTBaseURL: cfg.RESTBaseURL,
			HTTPTimeout: cfg.Timeout(),
			QuoteAsset:  cfg.QuoteAsset,
		}), nil
	case "paper":
		return paper.New(cfg.QuoteAsset, 10000), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", cfg.Name)
	}
}

func buildOracle(cfg config.OracleConfig) oracle.Oracle {
	return oracle.NewClient(cfg)
}

// auditPath derives the audit log location from the trade store path so both
// files live side by side.
func auditPath(storePath string) string {
	dir := filepath.Dir(storePath)
	return filepath.Join(dir, "oracle_audit.db")
}
