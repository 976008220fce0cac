package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"coinward/internal/config"
	"coinward/internal/logger"
	"coinward/internal/scheduler"
	"coinward/internal/store"
	"coinward/internal/store/auditlog"
	"coinward/internal/trader"
	apihttp "coinward/internal/transport/http"
)

// App wires the trading engine, its schedulers, and the HTTP API together.
type App struct {
	cfg    *config.Config
	engine *trader.Engine
	server *apihttp.Server
	store  *store.Store
	audit  *auditlog.Store
}

// NewApp builds the application from config without starting anything.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts the HTTP server and the three loops, blocking until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		s := scheduler.NewIntervalScheduler(ctx, "analysis", a.cfg.Loops.AnalysisInterval())
		s.RunImmediately = true
		s.Start(func() { a.engine.RunAnalysis(ctx) })
		return nil
	})

	group.Go(func() error {
		s := scheduler.NewIntervalScheduler(ctx, "monitor", a.cfg.Loops.MonitorInterval())
		s.Start(func() { a.engine.RunMonitor(ctx) })
		return nil
	})

	group.Go(func() error {
		s := scheduler.NewIntervalScheduler(ctx, "reconcile", a.cfg.Loops.AnalysisInterval())
		s.RunImmediately = true
		s.Start(func() { a.engine.Reconcile(ctx) })
		return nil
	})

	return group.Wait()
}

// Engine exposes the trading engine for harnesses and tests.
func (a *App) Engine() *trader.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("app: closing trade store: %v", err)
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			logger.Warnf("app: closing audit log: %v", err)
		}
	}
}
