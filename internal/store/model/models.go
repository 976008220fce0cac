package model

import (
	"gorm.io/datatypes"
)

type TradeStatus string

const (
	TradeStatusActive TradeStatus = "ACTIVE"
	TradeStatusClosed TradeStatus = "CLOSED"
)

// TradeModel is one trade from open to close. Targets are stored as a JSON
// array so new target shapes never need a migration.
type TradeModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	TradeID        string         `gorm:"column:trade_id;uniqueIndex"`
	Symbol         string         `gorm:"column:symbol;index"`
	EntryPrice     float64        `gorm:"column:entry_price"`
	Quantity       float64        `gorm:"column:quantity"`
	Remaining      float64        `gorm:"column:remaining_quantity"`
	EntryTimestamp int64          `gorm:"column:entry_timestamp"`
	StopLoss       float64        `gorm:"column:stop_loss"`
	Targets        datatypes.JSON `gorm:"column:targets"`
	HighestPrice   float64        `gorm:"column:highest_price"`
	FirstTargetHit bool           `gorm:"column:first_target_hit"`
	StopTightened  bool           `gorm:"column:stop_tightened"`
	Confidence     float64        `gorm:"column:confidence"`
	RealizedPnL    float64        `gorm:"column:realized_pnl"`
	Status         TradeStatus    `gorm:"column:status;index"`
	ExitPrice      float64        `gorm:"column:exit_price"`
	PnL            float64        `gorm:"column:pnl"`
	PnLPct         float64        `gorm:"column:pnl_pct"`
	CloseReason    string         `gorm:"column:close_reason"`
	ClosedAtUnix   int64          `gorm:"column:closed_at"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
	UpdatedAtUnix  int64          `gorm:"column:updated_at"`
}

func (TradeModel) TableName() string { return "trades" }

// FillModel journals every partial or full sell against a trade.
type FillModel struct {
	ID        int64   `gorm:"column:id;primaryKey"`
	TradeID   string  `gorm:"column:trade_id;index"`
	Price     float64 `gorm:"column:price"`
	Quantity  float64 `gorm:"column:quantity"`
	PnL       float64 `gorm:"column:pnl"`
	FilledAt  int64   `gorm:"column:filled_at"`
	CreatedAt int64   `gorm:"column:created_at"`
}

func (FillModel) TableName() string { return "fills" }

// MonthlyTradeModel is one row per opened trade, counted to enforce the
// per-symbol monthly cap across restarts.
type MonthlyTradeModel struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	Symbol    string `gorm:"column:symbol;index:idx_monthly_symbol_period"`
	Year      int    `gorm:"column:year;index:idx_monthly_symbol_period"`
	Month     int    `gorm:"column:month;index:idx_monthly_symbol_period"`
	OpenedAt  int64  `gorm:"column:opened_at"`
	CreatedAt int64  `gorm:"column:created_at"`
}

func (MonthlyTradeModel) TableName() string { return "monthly_trades" }

// RiskStateModel is a single-row snapshot of the portfolio counters.
type RiskStateModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	State         datatypes.JSON `gorm:"column:state"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (RiskStateModel) TableName() string { return "risk_state" }
