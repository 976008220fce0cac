package config

import "fmt"

func validate(c *Config) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Loops.validate(); err != nil {
		return err
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	switch e.Name {
	case "binance", "paper":
	default:
		return fmt.Errorf("exchange.name must be binance or paper, got %q", e.Name)
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.BalanceBufferPct >= 1 {
		return fmt.Errorf("risk.balance_buffer_pct must be < 1, got %v", r.BalanceBufferPct)
	}
	if r.OscillatorMin >= r.OscillatorMax {
		return fmt.Errorf("risk.oscillator_min must be below oscillator_max (%v >= %v)",
			r.OscillatorMin, r.OscillatorMax)
	}
	if r.MinConfidence > 100 {
		return fmt.Errorf("risk.min_confidence must be <= 100, got %v", r.MinConfidence)
	}
	return nil
}

func (l *LoopsConfig) validate() error {
	if l.MonitorIntervalMinutes > l.AnalysisIntervalMinutes {
		return fmt.Errorf("loops.monitor_interval_minutes (%d) must not exceed analysis_interval_minutes (%d)",
			l.MonitorIntervalMinutes, l.AnalysisIntervalMinutes)
	}
	return nil
}
