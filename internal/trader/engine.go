// Package trader runs the two trading loops and the exchange reconciler on
// top of the risk ledger. All exchange and oracle calls go through circuit
// breakers and per-call timeouts; the ledger lock is never held across them.
package trader

import (
	"context"
	"sync"
	"time"

	"coinward/internal/config"
	"coinward/internal/gateway/exchange"
	"coinward/internal/oracle"
	"coinward/internal/pkg/circuit"
	"coinward/internal/risk"
	"coinward/internal/store/auditlog"
	"coinward/internal/strategy"
)

// AdjustJournal mirrors in-memory stop and watermark changes to storage.
type AdjustJournal interface {
	SaveAdjust(ctx context.Context, pos risk.Position) error
}

type Engine struct {
	cfg       config.Config
	ledger    *risk.Ledger
	validator *risk.Validator
	allocator risk.Allocator
	resolver  *strategy.Resolver
	exch      exchange.Exchange
	oracle    oracle.Oracle
	audit     *auditlog.Store
	journal   AdjustJournal

	exchBreaker   *circuit.Breaker
	oracleBreaker *circuit.Breaker

	volMu       sync.Mutex
	lastVolumes map[string]float64

	nowFn func() time.Time
}

func NewEngine(
	cfg config.Config,
	ledger *risk.Ledger,
	validator *risk.Validator,
	allocator risk.Allocator,
	resolver *strategy.Resolver,
	exch exchange.Exchange,
	orc oracle.Oracle,
	audit *auditlog.Store,
	journal AdjustJournal,
) *Engine {
	return &Engine{
		cfg:           cfg,
		ledger:        ledger,
		validator:     validator,
		allocator:     allocator,
		resolver:      resolver,
		exch:          exch,
		oracle:        orc,
		audit:         audit,
		journal:       journal,
		exchBreaker:   circuit.NewBreaker("exchange", 5, 2*time.Minute),
		oracleBreaker: circuit.NewBreaker("oracle", 3, 5*time.Minute),
		lastVolumes:   make(map[string]float64),
	}
}

// callCtx derives the bounded context every collaborator call runs under.
func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.Loops.CallTimeout())
}

func (e *Engine) now() time.Time {
	if e.nowFn != nil {
		return e.nowFn()
	}
	return time.Now()
}

// quote fetches market data through the exchange breaker. A false return
// means the call was skipped or failed and the caller should move on.
func (e *Engine) quote(ctx context.Context, symbol string) (exchange.Quote, bool) {
	if !e.exchBreaker.Allow() {
		return exchange.Quote{}, false
	}
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	q, err := e.exch.Quote(cctx, symbol)
	if err != nil {
		e.exchBreaker.RecordFailure()
		return exchange.Quote{}, false
	}
	e.exchBreaker.RecordSuccess()
	return q, true
}

// volumeSpiked updates the per-symbol volume watermark and reports whether
// the latest reading jumped past the configured ratio.
func (e *Engine) volumeSpiked(symbol string, volume float64) bool {
	e.volMu.Lock()
	defer e.volMu.Unlock()
	prev := e.lastVolumes[symbol]
	e.lastVolumes[symbol] = volume
	if prev <= 0 {
		return false
	}
	return volume >= prev*e.cfg.Loops.VolumeSpikeRatio
}
