package config

import "time"

// Config is the top-level coinward configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Store    StoreConfig    `yaml:"store"`
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     RiskConfig     `yaml:"risk"`
	Loops    LoopsConfig    `yaml:"loops"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`
	HTTPAddr string `yaml:"http_addr"`
}

type ExchangeConfig struct {
	Name           string `yaml:"name"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	RESTBaseURL    string `yaml:"rest_base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	QuoteAsset     string `yaml:"quote_asset"`
}

func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

type OracleConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type StrategyConfig struct {
	RulesPath     string `yaml:"rules_path"`
	AllowFallback bool   `yaml:"allow_fallback"`
}

// RiskConfig carries the portfolio-level limits enforced by the safety gates
// and the ledger circuit breaker.
type RiskConfig struct {
	MaxOpenPositions     int     `yaml:"max_open_positions"`
	MinAccountBalanceUSD float64 `yaml:"min_account_balance_usd"`
	MinLiquidityUSD      float64 `yaml:"min_liquidity_usd"`
	MinConfidence        float64 `yaml:"min_confidence"`
	OscillatorMin        float64 `yaml:"oscillator_min"`
	OscillatorMax        float64 `yaml:"oscillator_max"`
	BalanceBufferPct     float64 `yaml:"balance_buffer_pct"`
	ConsecutiveLossLimit int     `yaml:"consecutive_loss_limit"`
	CooldownHours        int     `yaml:"cooldown_hours"`
	DailyMaxLossUSD      float64 `yaml:"daily_max_loss_usd"`
	DailyMaxLossPct      float64 `yaml:"daily_max_loss_pct"`
	TradingPaused        bool    `yaml:"trading_paused"`
}

func (r RiskConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownHours) * time.Hour
}

type LoopsConfig struct {
	AnalysisIntervalMinutes int     `yaml:"analysis_interval_minutes"`
	MonitorIntervalMinutes  int     `yaml:"monitor_interval_minutes"`
	CallTimeoutSeconds      int     `yaml:"call_timeout_seconds"`
	VolumeSpikeRatio        float64 `yaml:"volume_spike_ratio"`
}

func (l LoopsConfig) AnalysisInterval() time.Duration {
	return time.Duration(l.AnalysisIntervalMinutes) * time.Minute
}

func (l LoopsConfig) MonitorInterval() time.Duration {
	return time.Duration(l.MonitorIntervalMinutes) * time.Minute
}

func (l LoopsConfig) CallTimeout() time.Duration {
	return time.Duration(l.CallTimeoutSeconds) * time.Second
}
