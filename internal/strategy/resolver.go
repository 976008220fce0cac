package strategy

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"coinward/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrUnconfiguredSymbol is returned when a symbol has no policy and the
// resolver was built without a fallback. Callers must not open positions for
// such symbols.
var ErrUnconfiguredSymbol = errors.New("strategy: unconfigured symbol")

//go:embed rules_schema.json
var rulesSchemaJSON []byte

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Resolver maps symbols to their Policy. Rules load from a yaml file,
// validate against a jsonschema, and reload atomically on file change.
type Resolver struct {
	path          string
	allowFallback bool
	schema        *jsonschema.Schema
	v             *viper.Viper

	mu       sync.RWMutex
	bySymbol map[string]Policy
	fallback *Policy
	loadedAt time.Time
}

// NewResolver loads the rules file at path. An empty path loads the embedded
// default rules and disables watching.
func NewResolver(path string, allowFallback bool) (*Resolver, error) {
	schema, err := compileRulesSchema()
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		path:          strings.TrimSpace(path),
		allowFallback: allowFallback,
		schema:        schema,
	}
	if r.path == "" {
		var file rulesFile
		if err := yaml.Unmarshal(defaultRulesYAML, &file); err != nil {
			return nil, fmt.Errorf("strategy: parsing embedded rules failed: %w", err)
		}
		if err := r.install(file); err != nil {
			return nil, err
		}
		return r, nil
	}

	v := viper.New()
	v.SetConfigFile(r.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("strategy: reading rules failed (%s): %w", r.path, err)
	}
	r.v = v
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("strategy: rules reload failed, keeping previous set: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

// Resolve returns the policy for symbol. Symbols without an explicit mapping
// get the fallback policy when one is allowed and configured.
func (r *Resolver) Resolve(symbol string) (Policy, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.bySymbol[key]; ok {
		return p, nil
	}
	if r.allowFallback && r.fallback != nil {
		return *r.fallback, nil
	}
	return Policy{}, fmt.Errorf("%w: %s", ErrUnconfiguredSymbol, symbol)
}

// Symbols returns the explicitly configured symbols, for loop scheduling.
func (r *Resolver) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.bySymbol))
	for sym := range r.bySymbol {
		out = append(out, sym)
	}
	return out
}

func (r *Resolver) reload() error {
	var file rulesFile
	if err := r.v.Unmarshal(&file); err != nil {
		return fmt.Errorf("strategy: parsing rules failed: %w", err)
	}
	return r.install(file)
}

func (r *Resolver) install(file rulesFile) error {
	if len(file.Strategies) == 0 && file.Fallback == nil {
		return fmt.Errorf("strategy: rules file declares no strategies")
	}
	bySymbol := make(map[string]Policy)
	for name, spec := range file.Strategies {
		if err := r.validateSpec(name, spec); err != nil {
			return err
		}
		policy := spec.toPolicy(name)
		for _, sym := range spec.Symbols {
			key := strings.ToUpper(strings.TrimSpace(sym))
			if key == "" {
				continue
			}
			if prev, dup := bySymbol[key]; dup {
				return fmt.Errorf("strategy: symbol %s mapped by both %s and %s", key, prev.Name, name)
			}
			bySymbol[key] = policy
		}
	}
	var fallback *Policy
	if file.Fallback != nil {
		if err := r.validateSpec("fallback", *file.Fallback); err != nil {
			return err
		}
		p := file.Fallback.toPolicy("fallback")
		fallback = &p
	}

	r.mu.Lock()
	r.bySymbol = bySymbol
	r.fallback = fallback
	r.loadedAt = time.Now()
	r.mu.Unlock()
	logger.Infof("strategy: loaded %d symbol policies (fallback=%v)", len(bySymbol), fallback != nil)
	return nil
}

func (r *Resolver) validateSpec(name string, spec policySpec) error {
	doc, err := specAsJSON(spec)
	if err != nil {
		return fmt.Errorf("strategy %s: %w", name, err)
	}
	if err := r.schema.Validate(doc); err != nil {
		return fmt.Errorf("strategy %s: schema violation: %w", name, err)
	}
	total := 0.0
	for _, t := range spec.Targets {
		total += t.CloseFraction
	}
	if total > 1.0+1e-9 {
		return fmt.Errorf("strategy %s: target close fractions sum to %.2f (> 1)", name, total)
	}
	if spec.RegularStopPct > spec.InitialStopPct {
		return fmt.Errorf("strategy %s: regular_stop_pct must not exceed initial_stop_pct", name)
	}
	return nil
}

// specAsJSON round-trips a policySpec through JSON so jsonschema sees the same
// generic document shape it was compiled against.
func specAsJSON(spec policySpec) (any, error) {
	type jsonTarget struct {
		OffsetPct     float64 `json:"offset_pct"`
		CloseFraction float64 `json:"close_fraction"`
	}
	type jsonSpec struct {
		MinHoldDays          int          `json:"min_hold_days"`
		MaxHoldDays          int          `json:"max_hold_days"`
		InitialStopPct       float64      `json:"initial_stop_pct"`
		RegularStopPct       float64      `json:"regular_stop_pct"`
		Targets              []jsonTarget `json:"targets,omitempty"`
		TrailingStopPct      float64      `json:"trailing_stop_pct"`
		PositionSizeFraction float64      `json:"position_size_fraction"`
		MaxTradesPerMonth    int          `json:"max_trades_per_month"`
	}
	js := jsonSpec{
		MinHoldDays:          spec.MinHoldDays,
		MaxHoldDays:          spec.MaxHoldDays,
		InitialStopPct:       spec.InitialStopPct,
		RegularStopPct:       spec.RegularStopPct,
		TrailingStopPct:      spec.TrailingStopPct,
		PositionSizeFraction: spec.PositionSizeFraction,
		MaxTradesPerMonth:    spec.MaxTradesPerMonth,
	}
	for _, t := range spec.Targets {
		js.Targets = append(js.Targets, jsonTarget{OffsetPct: t.OffsetPct, CloseFraction: t.CloseFraction})
	}
	raw, err := json.Marshal(js)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func compileRulesSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rules_schema.json", bytes.NewReader(rulesSchemaJSON)); err != nil {
		return nil, fmt.Errorf("strategy: loading rules schema failed: %w", err)
	}
	schema, err := compiler.Compile("rules_schema.json")
	if err != nil {
		return nil, fmt.Errorf("strategy: compiling rules schema failed: %w", err)
	}
	return schema, nil
}
