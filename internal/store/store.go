// Package store persists trades, monthly counters, and the risk-state
// snapshot in SQLite via gorm.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"coinward/internal/risk"
	storemodel "coinward/internal/store/model"
)

const riskStateRowID = 1

// Store implements the ledger's persistence interfaces on one SQLite file.
type Store struct {
	db *gorm.DB
}

var (
	_ risk.TradeRecorder  = (*Store)(nil)
	_ risk.MonthlyCounter = (*Store)(nil)
	_ risk.StateStore     = (*Store)(nil)
)

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(
		&storemodel.TradeModel{},
		&storemodel.FillModel{},
		&storemodel.MonthlyTradeModel{},
		&storemodel.RiskStateModel{},
	); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for HTTP reads, low lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) RecordOpen(ctx context.Context, pos risk.Position) error {
	targets, err := json.Marshal(pos.Targets)
	if err != nil {
		return fmt.Errorf("store: encode targets: %w", err)
	}
	now := time.Now().Unix()
	row := storemodel.TradeModel{
		TradeID:        pos.TradeID,
		Symbol:         pos.Symbol,
		EntryPrice:     pos.EntryPrice,
		Quantity:       pos.Quantity,
		Remaining:      pos.Remaining,
		EntryTimestamp: pos.EntryTime.Unix(),
		StopLoss:       pos.StopLoss,
		Targets:        datatypes.JSON(targets),
		HighestPrice:   pos.HighestPrice,
		FirstTargetHit: pos.FirstTargetHit,
		StopTightened:  pos.StopTightened,
		Confidence:     pos.Confidence,
		RealizedPnL:    pos.RealizedPnL,
		Status:         storemodel.TradeStatusActive,
		CreatedAtUnix:  now,
		UpdatedAtUnix:  now,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) RecordPartial(ctx context.Context, tradeID string, exitPrice, quantity, pnl float64, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fill := storemodel.FillModel{
			TradeID:   tradeID,
			Price:     exitPrice,
			Quantity:  quantity,
			PnL:       pnl,
			FilledAt:  at.Unix(),
			CreatedAt: time.Now().Unix(),
		}
		if err := tx.Create(&fill).Error; err != nil {
			return err
		}
		return tx.Model(&storemodel.TradeModel{}).
			Where("trade_id = ?", tradeID).
			Updates(map[string]any{
				"remaining_quantity": gorm.Expr("remaining_quantity - ?", quantity),
				"realized_pnl":       gorm.Expr("realized_pnl + ?", pnl),
				"first_target_hit":   true,
				"updated_at":         time.Now().Unix(),
			}).Error
	})
}

func (s *Store) RecordClose(ctx context.Context, closed risk.ClosedPosition) error {
	return s.db.WithContext(ctx).Model(&storemodel.TradeModel{}).
		Where("trade_id = ?", closed.TradeID).
		Updates(map[string]any{
			"status":             storemodel.TradeStatusClosed,
			"remaining_quantity": 0,
			"exit_price":         closed.ExitPrice,
			"pnl":                closed.PnL,
			"pnl_pct":            closed.PnLPct,
			"close_reason":       string(closed.Reason),
			"closed_at":          closed.ClosedAt.Unix(),
			"updated_at":         time.Now().Unix(),
		}).Error
}

// SaveAdjust mirrors stop and watermark mutations so a restart restores the
// exact exit-machine phase.
func (s *Store) SaveAdjust(ctx context.Context, pos risk.Position) error {
	return s.db.WithContext(ctx).Model(&storemodel.TradeModel{}).
		Where("trade_id = ?", pos.TradeID).
		Updates(map[string]any{
			"stop_loss":        pos.StopLoss,
			"highest_price":    pos.HighestPrice,
			"first_target_hit": pos.FirstTargetHit,
			"stop_tightened":   pos.StopTightened,
			"updated_at":       time.Now().Unix(),
		}).Error
}

func (s *Store) LoadOpen(ctx context.Context) ([]risk.Position, error) {
	var rows []storemodel.TradeModel
	err := s.db.WithContext(ctx).
		Where("status = ?", storemodel.TradeStatusActive).
		Order("entry_timestamp asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: load open trades: %w", err)
	}
	out := make([]risk.Position, 0, len(rows))
	for _, row := range rows {
		var targets []risk.TakeProfitTarget
		if len(row.Targets) > 0 {
			if err := json.Unmarshal(row.Targets, &targets); err != nil {
				return nil, fmt.Errorf("store: decode targets for %s: %w", row.TradeID, err)
			}
		}
		out = append(out, risk.Position{
			TradeID:        row.TradeID,
			Symbol:         row.Symbol,
			EntryPrice:     row.EntryPrice,
			Quantity:       row.Quantity,
			Remaining:      row.Remaining,
			EntryTime:      time.Unix(row.EntryTimestamp, 0).UTC(),
			StopLoss:       row.StopLoss,
			Targets:        targets,
			HighestPrice:   row.HighestPrice,
			FirstTargetHit: row.FirstTargetHit,
			StopTightened:  row.StopTightened,
			Status:         risk.StatusActive,
			Confidence:     row.Confidence,
			RealizedPnL:    row.RealizedPnL,
		})
	}
	return out, nil
}

// ClosedTrades returns the most recent closed trades, newest first.
func (s *Store) ClosedTrades(ctx context.Context, limit int) ([]storemodel.TradeModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []storemodel.TradeModel
	err := s.db.WithContext(ctx).
		Where("status = ?", storemodel.TradeStatusClosed).
		Order("closed_at desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *Store) CountForMonth(ctx context.Context, symbol string, year int, month time.Month) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&storemodel.MonthlyTradeModel{}).
		Where("symbol = ? AND year = ? AND month = ?", symbol, year, int(month)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("store: monthly count for %s: %w", symbol, err)
	}
	return int(count), nil
}

func (s *Store) Increment(ctx context.Context, symbol string, at time.Time) error {
	at = at.UTC()
	row := storemodel.MonthlyTradeModel{
		Symbol:    symbol,
		Year:      at.Year(),
		Month:     int(at.Month()),
		OpenedAt:  at.Unix(),
		CreatedAt: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) SaveState(ctx context.Context, state risk.RiskState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: encode risk state: %w", err)
	}
	row := storemodel.RiskStateModel{
		ID:            riskStateRowID,
		State:         datatypes.JSON(blob),
		UpdatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) LoadState(ctx context.Context) (risk.RiskState, bool, error) {
	var row storemodel.RiskStateModel
	err := s.db.WithContext(ctx).First(&row, riskStateRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return risk.RiskState{}, false, nil
	}
	if err != nil {
		return risk.RiskState{}, false, fmt.Errorf("store: load risk state: %w", err)
	}
	var state risk.RiskState
	if err := json.Unmarshal(row.State, &state); err != nil {
		return risk.RiskState{}, false, fmt.Errorf("store: decode risk state: %w", err)
	}
	return state, true, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
