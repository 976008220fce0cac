package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9991"

	defaultExchangeName    = "binance"
	defaultExchangeREST    = "https://api.binance.com"
	defaultExchangeTimeout = 30
	defaultQuoteAsset      = "USDT"

	defaultOracleTimeout = 30

	defaultStorePath     = "data/coinward.db"
	defaultStrategyRules = "configs/strategies.yaml"

	defaultMaxOpenPositions = 2
	defaultMinBalanceUSD    = 10
	defaultMinLiquidityUSD  = 50_000_000
	defaultMinConfidence    = 70
	defaultOscillatorMin    = 25
	defaultOscillatorMax    = 78
	defaultBalanceBuffer    = 0.10
	defaultLossLimit        = 3
	defaultCooldownHours    = 24
	defaultDailyMaxLossUSD  = 100
	defaultDailyMaxLossPct  = 10

	defaultAnalysisMinutes = 60
	defaultMonitorMinutes  = 5
	defaultCallTimeout     = 30
	defaultVolumeSpike     = 1.5
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Exchange.applyDefaults()
	c.Oracle.applyDefaults()
	c.Store.applyDefaults()
	c.Strategy.applyDefaults()
	c.Risk.applyDefaults()
	c.Loops.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if strings.TrimSpace(a.Env) == "" {
		a.Env = defaultAppEnv
	}
	if strings.TrimSpace(a.LogLevel) == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
}

func (e *ExchangeConfig) applyDefaults() {
	if strings.TrimSpace(e.Name) == "" {
		e.Name = defaultExchangeName
	}
	if strings.TrimSpace(e.RESTBaseURL) == "" {
		e.RESTBaseURL = defaultExchangeREST
	}
	if e.TimeoutSeconds <= 0 {
		e.TimeoutSeconds = defaultExchangeTimeout
	}
	if strings.TrimSpace(e.QuoteAsset) == "" {
		e.QuoteAsset = defaultQuoteAsset
	}
}

func (o *OracleConfig) applyDefaults() {
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = defaultOracleTimeout
	}
}

func (s *StoreConfig) applyDefaults() {
	if strings.TrimSpace(s.Path) == "" {
		s.Path = defaultStorePath
	}
}

func (s *StrategyConfig) applyDefaults() {
	if strings.TrimSpace(s.RulesPath) == "" {
		s.RulesPath = defaultStrategyRules
	}
}

func (r *RiskConfig) applyDefaults() {
	if r.MaxOpenPositions <= 0 {
		r.MaxOpenPositions = defaultMaxOpenPositions
	}
	if r.MinAccountBalanceUSD <= 0 {
		r.MinAccountBalanceUSD = defaultMinBalanceUSD
	}
	if r.MinLiquidityUSD <= 0 {
		r.MinLiquidityUSD = defaultMinLiquidityUSD
	}
	if r.MinConfidence <= 0 {
		r.MinConfidence = defaultMinConfidence
	}
	if r.OscillatorMin <= 0 {
		r.OscillatorMin = defaultOscillatorMin
	}
	if r.OscillatorMax <= 0 {
		r.OscillatorMax = defaultOscillatorMax
	}
	if r.BalanceBufferPct <= 0 {
		r.BalanceBufferPct = defaultBalanceBuffer
	}
	if r.ConsecutiveLossLimit <= 0 {
		r.ConsecutiveLossLimit = defaultLossLimit
	}
	if r.CooldownHours <= 0 {
		r.CooldownHours = defaultCooldownHours
	}
	if r.DailyMaxLossUSD <= 0 {
		r.DailyMaxLossUSD = defaultDailyMaxLossUSD
	}
	if r.DailyMaxLossPct <= 0 {
		r.DailyMaxLossPct = defaultDailyMaxLossPct
	}
}

func (l *LoopsConfig) applyDefaults() {
	if l.AnalysisIntervalMinutes <= 0 {
		l.AnalysisIntervalMinutes = defaultAnalysisMinutes
	}
	if l.MonitorIntervalMinutes <= 0 {
		l.MonitorIntervalMinutes = defaultMonitorMinutes
	}
	if l.CallTimeoutSeconds <= 0 {
		l.CallTimeoutSeconds = defaultCallTimeout
	}
	if l.VolumeSpikeRatio <= 0 {
		l.VolumeSpikeRatio = defaultVolumeSpike
	}
}
