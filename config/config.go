package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/rustyeddy/barsim/pkg/errs"
	"github.com/rustyeddy/barsim/pkg/logger"
	"github.com/rustyeddy/barsim/strategy"
	"github.com/rustyeddy/barsim/walkforward"
	"gopkg.in/yaml.v3"
)

// DefaultKey is the exits/risk entry used for symbols without their own.
const DefaultKey = "default"

// Config is the complete backtest run configuration.
type Config struct {
	Backtest BacktestConfig        `json:"backtest" yaml:"backtest"`
	Paths    PathsConfig           `json:"paths" yaml:"paths"`
	Source   SourceConfig          `json:"source" yaml:"source"`
	Symbols  []string              `json:"symbols" yaml:"symbols" default:"[\"BTCUSDT\",\"ETHUSDT\",\"SOLUSDT\"]" validate:"min=1,dive,required"`
	Regime   RegimeConfig          `json:"regime" yaml:"regime"`
	Entry    EntryConfig           `json:"entry" yaml:"entry"`
	Exits    map[string]ExitConfig `json:"exits" yaml:"exits" validate:"dive"`
	Risk     map[string]RiskConfig `json:"risk" yaml:"risk" validate:"dive"`
	Log      logger.Config         `json:"log" yaml:"log"`
	Journal  JournalConfig         `json:"journal" yaml:"journal"`
	Metrics  MetricsConfig         `json:"metrics" yaml:"metrics"`
}

type BacktestConfig struct {
	Mode           string            `json:"mode" yaml:"mode" default:"insample" validate:"oneof=insample oos walkforward"`
	Start          string            `json:"start,omitempty" yaml:"start,omitempty"`
	End            string            `json:"end,omitempty" yaml:"end,omitempty"`
	OOSLastKMonths int               `json:"oos_last_k_months" yaml:"oos_last_k_months" default:"1" validate:"gte=1"`
	Walkforward    WalkforwardConfig `json:"walkforward" yaml:"walkforward"`
	Workers        int               `json:"workers" yaml:"workers" validate:"gte=0"` // 0 = one per CPU
	EntryFill      string            `json:"entry_fill" yaml:"entry_fill" default:"close" validate:"oneof=close next_open"`
}

type WalkforwardConfig struct {
	Train int `json:"train" yaml:"train" default:"3"`
	Test  int `json:"test" yaml:"test" default:"1"`
	Step  int `json:"step" yaml:"step" default:"1"`
}

func (w WalkforwardConfig) Spec() walkforward.Spec {
	return walkforward.Spec{Train: w.Train, Test: w.Test, Step: w.Step}
}

type PathsConfig struct {
	DataRoot   string `json:"data_root" yaml:"data_root" default:"data"`
	OutputsDir string `json:"outputs_dir" yaml:"outputs_dir" default:"outputs"`
}

// SourceConfig selects where bars are loaded from.
type SourceConfig struct {
	Kind  string `json:"kind" yaml:"kind" default:"csv" validate:"oneof=csv clickhouse"`
	DSN   string `json:"dsn,omitempty" yaml:"dsn,omitempty" validate:"required_if=Kind clickhouse"`
	Table string `json:"table" yaml:"table" default:"bars"`
}

type RegimeConfig struct {
	Provider string      `json:"provider" yaml:"provider" default:"slope"`
	Slope    SlopeConfig `json:"slope" yaml:"slope"`
}

type SlopeConfig struct {
	NShort int `json:"n_short" yaml:"n_short" default:"30" validate:"gte=1"`
	NLong  int `json:"n_long" yaml:"n_long" default:"120" validate:"gtfield=NShort"`
}

type EntryConfig struct {
	Provider           string                   `json:"provider" yaml:"provider" default:"pullback_resumption"`
	PullbackResumption PullbackResumptionConfig `json:"pullback_resumption" yaml:"pullback_resumption"`
}

type PullbackResumptionConfig struct {
	MALookback int `json:"ma_lookback" yaml:"ma_lookback" default:"20" validate:"gte=1"`
}

// ExitConfig holds the stop, target, breakeven and trailing rules for a
// symbol. Multipliers are in units of ATR.
type ExitConfig struct {
	ATRPeriod              int     `json:"atr_period" yaml:"atr_period" default:"14" validate:"gte=1"`
	SLMult                 float64 `json:"sl_mult" yaml:"sl_mult" default:"15" validate:"gt=0"`
	TPMult                 float64 `json:"tp_mult" yaml:"tp_mult" default:"60" validate:"gte=0"`
	BreakevenMode          string  `json:"breakeven_mode" yaml:"breakeven_mode" default:"target" validate:"oneof=r target price atr"`
	BreakevenTrigger       float64 `json:"breakeven_trigger" yaml:"breakeven_trigger" default:"0.5" validate:"gte=0"`
	BreakevenOffset        float64 `json:"breakeven_offset" yaml:"breakeven_offset"`
	TrailingEnabled        bool    `json:"trailing_enabled" yaml:"trailing_enabled" default:"true"`
	TrailMode              string  `json:"trail_mode" yaml:"trail_mode" default:"atr" validate:"oneof=r target price atr"`
	TrailActivation        float64 `json:"trail_activation" yaml:"trail_activation" default:"3" validate:"gte=0"`
	TrailATRMult           float64 `json:"trail_atr_mult" yaml:"trail_atr_mult" default:"3" validate:"gte=0"`
	TrailRequiresBreakeven bool    `json:"trail_requires_breakeven" yaml:"trail_requires_breakeven" default:"true"`
	GapThrough             bool    `json:"gap_through" yaml:"gap_through"`
}

// UnmarshalYAML fills defaults before decoding so that keys left out of
// a per-symbol entry keep their default while explicit zeros survive.
func (e *ExitConfig) UnmarshalYAML(n *yaml.Node) error {
	if err := defaults.Set(e); err != nil {
		return err
	}
	type plain ExitConfig
	return n.Decode((*plain)(e))
}

func (e *ExitConfig) UnmarshalJSON(b []byte) error {
	if err := defaults.Set(e); err != nil {
		return err
	}
	type plain ExitConfig
	return json.Unmarshal(b, (*plain)(e))
}

type RiskConfig struct {
	Equity   float64 `json:"equity" yaml:"equity" default:"10000" validate:"gt=0"`
	RiskPct  float64 `json:"risk_pct" yaml:"risk_pct" default:"0.01" validate:"gt=0,lte=1"`
	MinQty   float64 `json:"min_qty" yaml:"min_qty" validate:"gte=0"`
	LotStep  float64 `json:"lot_step" yaml:"lot_step" validate:"gte=0"`
	Compound bool    `json:"compound" yaml:"compound"`
}

func (r *RiskConfig) UnmarshalYAML(n *yaml.Node) error {
	if err := defaults.Set(r); err != nil {
		return err
	}
	type plain RiskConfig
	return n.Decode((*plain)(r))
}

func (r *RiskConfig) UnmarshalJSON(b []byte) error {
	if err := defaults.Set(r); err != nil {
		return err
	}
	type plain RiskConfig
	return json.Unmarshal(b, (*plain)(r))
}

type JournalConfig struct {
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	Timeline   bool   `json:"timeline" yaml:"timeline" default:"true"`
}

type MetricsConfig struct {
	Textfile string `json:"textfile,omitempty" yaml:"textfile,omitempty"`
}

var validate = validator.New()

// LoadFromFile loads configuration from a YAML or JSON file, fills defaults
// and validates it.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load decodes a YAML or JSON file over the defaults without validating,
// so that command-line overrides can be applied first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Defaults go in first and the file is decoded over them.
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("%w: defaults: %w", errs.ErrConfiguration, err)
	}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: parse config (tried YAML and JSON): %w", errs.ErrConfiguration, err)
		}
	}
	return cfg, nil
}

// SaveToFile saves configuration as YAML for .yaml/.yml paths and JSON
// otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks field constraints and the cross-field rules between
// mode, dates and providers. Every error wraps errs.ErrConfiguration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("%w: %s", errs.ErrConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}

	for k, e := range c.Exits {
		if e.BreakevenMode == "target" && e.TPMult == 0 && e.BreakevenTrigger > 0 {
			return fmt.Errorf("%w: exits.%s: breakeven_mode target needs tp_mult > 0", errs.ErrConfiguration, k)
		}
		if e.TrailingEnabled && e.TrailRequiresBreakeven && e.BreakevenTrigger == 0 {
			return fmt.Errorf("%w: exits.%s: trail_requires_breakeven with breakeven disabled", errs.ErrConfiguration, k)
		}
		if e.TrailingEnabled && e.TrailATRMult == 0 {
			return fmt.Errorf("%w: exits.%s: trailing_enabled needs trail_atr_mult > 0", errs.ErrConfiguration, k)
		}
	}

	start, end, err := c.Range()
	if err != nil {
		return err
	}
	switch walkforward.Mode(c.Backtest.Mode) {
	case walkforward.InSample, walkforward.Walkforward:
		if start.IsZero() || end.IsZero() {
			return fmt.Errorf("%w: %s mode needs backtest.start and backtest.end", errs.ErrConfiguration, c.Backtest.Mode)
		}
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return fmt.Errorf("%w: backtest.start must be before backtest.end", errs.ErrConfiguration)
	}
	if c.Backtest.Mode == string(walkforward.Walkforward) {
		if err := c.Backtest.Walkforward.Spec().Validate(); err != nil {
			return err
		}
	}

	if _, err := strategy.RegimeByName(c.Regime.Provider, c.StrategyParams()); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}
	if _, err := strategy.SignalByName(c.Entry.Provider, c.StrategyParams()); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}
	return nil
}

// Range parses backtest.start and backtest.end. Unset values are zero.
func (c *Config) Range() (start, end time.Time, err error) {
	if start, err = ParseTime(c.Backtest.Start); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: backtest.start: %w", errs.ErrConfiguration, err)
	}
	if end, err = ParseTime(c.Backtest.End); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: backtest.end: %w", errs.ErrConfiguration, err)
	}
	return start, end, nil
}

// Schedule resolves the window schedule. In oos mode a missing end is now
// and a missing start is the beginning of the out-of-sample window.
func (c *Config) Schedule(now time.Time) (walkforward.Schedule, error) {
	mode, err := walkforward.ParseMode(c.Backtest.Mode)
	if err != nil {
		return walkforward.Schedule{}, err
	}
	start, end, err := c.Range()
	if err != nil {
		return walkforward.Schedule{}, err
	}
	if mode == walkforward.OOS {
		if end.IsZero() {
			end = now.UTC().Truncate(time.Minute)
		}
		if start.IsZero() {
			start = walkforward.AddMonths(end, -c.Backtest.OOSLastKMonths)
		}
	}
	wf := c.Backtest.Walkforward
	return walkforward.Schedule{
		Mode:        mode,
		Start:       start,
		End:         end,
		TrainMonths: wf.Train,
		TestMonths:  wf.Test,
		StepMonths:  wf.Step,
		OOSLastK:    c.Backtest.OOSLastKMonths,
	}, nil
}

func (c *Config) StrategyParams() strategy.Params {
	return strategy.Params{
		NShort:     c.Regime.Slope.NShort,
		NLong:      c.Regime.Slope.NLong,
		MALookback: c.Entry.PullbackResumption.MALookback,
	}
}

// ExitsFor returns the symbol's exit rules, falling back to the default
// entry and then to built-in defaults.
func (c *Config) ExitsFor(symbol string) ExitConfig {
	if e, ok := c.Exits[symbol]; ok {
		return e
	}
	if e, ok := c.Exits[DefaultKey]; ok {
		return e
	}
	var e ExitConfig
	_ = defaults.Set(&e)
	return e
}

// RiskFor returns the symbol's sizing, falling back like ExitsFor.
func (c *Config) RiskFor(symbol string) RiskConfig {
	if r, ok := c.Risk[symbol]; ok {
		return r
	}
	if r, ok := c.Risk[DefaultKey]; ok {
		return r
	}
	var r RiskConfig
	_ = defaults.Set(&r)
	return r
}

// ParseTime accepts RFC 3339, "2006-01-02T15:04:05" or "2006-01-02".
// Times without a zone are UTC. An empty string is the zero time.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// Default returns a complete, valid configuration.
func Default() *Config {
	c := &Config{}
	_ = defaults.Set(c)
	c.Backtest.Start = "2025-01-01"
	c.Backtest.End = "2025-08-01"

	var e ExitConfig
	var r RiskConfig
	_ = defaults.Set(&e)
	_ = defaults.Set(&r)
	c.Exits = map[string]ExitConfig{DefaultKey: e}
	c.Risk = map[string]RiskConfig{DefaultKey: r}
	return c
}
