package strategy

import "time"

// Target is one take-profit level: a price offset above entry and the
// fraction of the original quantity to close when it is reached.
type Target struct {
	OffsetPct     float64 `yaml:"offset_pct" mapstructure:"offset_pct"`
	CloseFraction float64 `yaml:"close_fraction" mapstructure:"close_fraction"`
}

// Policy holds the exit and sizing parameters for one symbol. Policies are
// plain data, resolved once per trade and never mutated at runtime.
type Policy struct {
	Name                 string
	MinHold              time.Duration
	MaxHold              time.Duration
	InitialStopPct       float64
	RegularStopPct       float64
	Targets              []Target
	TrailingStopPct      float64
	PositionSizeFraction float64
	MaxTradesPerMonth    int
}

// WithInitialStop returns a copy with the initial stop replaced, keeping the
// regular stop at or below it. Used when a signal supplies its own stop.
func (p Policy) WithInitialStop(stopPct float64) Policy {
	if stopPct <= 0 {
		return p
	}
	out := p
	out.Targets = append([]Target(nil), p.Targets...)
	out.InitialStopPct = stopPct
	if out.RegularStopPct > stopPct {
		out.RegularStopPct = stopPct
	}
	return out
}

// policySpec is the on-disk shape of a policy entry.
type policySpec struct {
	Symbols              []string `yaml:"symbols" mapstructure:"symbols"`
	MinHoldDays          int      `yaml:"min_hold_days" mapstructure:"min_hold_days"`
	MaxHoldDays          int      `yaml:"max_hold_days" mapstructure:"max_hold_days"`
	InitialStopPct       float64  `yaml:"initial_stop_pct" mapstructure:"initial_stop_pct"`
	RegularStopPct       float64  `yaml:"regular_stop_pct" mapstructure:"regular_stop_pct"`
	Targets              []Target `yaml:"targets" mapstructure:"targets"`
	TrailingStopPct      float64  `yaml:"trailing_stop_pct" mapstructure:"trailing_stop_pct"`
	PositionSizeFraction float64  `yaml:"position_size_fraction" mapstructure:"position_size_fraction"`
	MaxTradesPerMonth    int      `yaml:"max_trades_per_month" mapstructure:"max_trades_per_month"`
}

type rulesFile struct {
	Strategies map[string]policySpec `yaml:"strategies" mapstructure:"strategies"`
	Fallback   *policySpec           `yaml:"fallback" mapstructure:"fallback"`
}

func (s policySpec) toPolicy(name string) Policy {
	return Policy{
		Name:                 name,
		MinHold:              time.Duration(s.MinHoldDays) * 24 * time.Hour,
		MaxHold:              time.Duration(s.MaxHoldDays) * 24 * time.Hour,
		InitialStopPct:       s.InitialStopPct,
		RegularStopPct:       s.RegularStopPct,
		Targets:              append([]Target(nil), s.Targets...),
		TrailingStopPct:      s.TrailingStopPct,
		PositionSizeFraction: s.PositionSizeFraction,
		MaxTradesPerMonth:    s.MaxTradesPerMonth,
	}
}
