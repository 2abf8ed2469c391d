package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/risk"
	"github.com/rustyeddy/barsim/strategy"
	"github.com/rustyeddy/barsim/trade"
	"github.com/rustyeddy/barsim/walkforward"
)

// runFlags are the command-line overrides for the run command.
type runFlags struct {
	configPath  string
	mode        string
	start       string
	end         string
	oosLastK    int
	walkforward string
	symbols     []string
	workers     int
	entryFill   string
	dataRoot    string
	outputs     string
	sqlitePath  string
	dryRun      bool
}

// apply copies every flag the user set onto cfg. changed reports whether
// a flag was given on the command line.
func (f *runFlags) apply(cfg *config.Config, changed func(name string) bool) error {
	if changed("mode") {
		cfg.Backtest.Mode = f.mode
	}
	if changed("start") {
		cfg.Backtest.Start = f.start
	}
	if changed("end") {
		cfg.Backtest.End = f.end
	}
	if changed("oos_last_k_months") {
		cfg.Backtest.OOSLastKMonths = f.oosLastK
	}
	if changed("walkforward") {
		spec, err := walkforward.ParseSpec(f.walkforward)
		if err != nil {
			return err
		}
		cfg.Backtest.Walkforward = config.WalkforwardConfig{Train: spec.Train, Test: spec.Test, Step: spec.Step}
	}
	if changed("symbols") {
		cfg.Symbols = cfg.Symbols[:0]
		for _, s := range f.symbols {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				cfg.Symbols = append(cfg.Symbols, s)
			}
		}
	}
	if changed("workers") {
		cfg.Backtest.Workers = f.workers
	}
	if changed("entry-fill") {
		cfg.Backtest.EntryFill = f.entryFill
	}
	if changed("data-root") {
		cfg.Paths.DataRoot = f.dataRoot
	}
	if changed("outputs") {
		cfg.Paths.OutputsDir = f.outputs
	}
	if changed("sqlite") {
		cfg.Journal.SQLitePath = f.sqlitePath
	}
	return nil
}

// symbolParams resolves each symbol's exits and risk into engine
// parameters.
func symbolParams(cfg *config.Config) func(symbol string) backtest.Params {
	fill := backtest.EntryFill(cfg.Backtest.EntryFill)
	return func(symbol string) backtest.Params {
		ex := cfg.ExitsFor(symbol)
		rk := cfg.RiskFor(symbol)
		return backtest.Params{
			ATRPeriod: ex.ATRPeriod,
			SLMult:    ex.SLMult,
			TPMult:    ex.TPMult,
			Manager: trade.Rules{
				BreakevenMode:          trade.ProgressMode(ex.BreakevenMode),
				BreakevenTrigger:       ex.BreakevenTrigger,
				BreakevenOffset:        ex.BreakevenOffset,
				TrailingEnabled:        ex.TrailingEnabled,
				TrailMode:              trade.ProgressMode(ex.TrailMode),
				TrailActivation:        ex.TrailActivation,
				TrailATRMult:           ex.TrailATRMult,
				TrailRequiresBreakeven: ex.TrailRequiresBreakeven,
				GapThrough:             ex.GapThrough,
			},
			Sizing: risk.Sizing{
				Equity:  rk.Equity,
				RiskPct: rk.RiskPct,
				MinQty:  rk.MinQty,
				LotStep: rk.LotStep,
			},
			Compound:  rk.Compound,
			EntryFill: fill,
		}
	}
}

func buildProviders(cfg *config.Config) (backtest.Providers, error) {
	p := cfg.StrategyParams()
	regime, err := strategy.RegimeByName(cfg.Regime.Provider, p)
	if err != nil {
		return backtest.Providers{}, err
	}
	signal, err := strategy.SignalByName(cfg.Entry.Provider, p)
	if err != nil {
		return backtest.Providers{}, err
	}
	return backtest.Providers{Regime: regime, Signal: signal}, nil
}

// openSource returns the configured bar source and a function that
// releases it.
func openSource(ctx context.Context, cfg *config.Config) (market.BarSource, func() error, error) {
	switch cfg.Source.Kind {
	case "", "csv":
		return market.NewCSVSource(cfg.Paths.DataRoot), func() error { return nil }, nil
	case "clickhouse":
		src, err := market.OpenClickHouse(ctx, cfg.Source.DSN, cfg.Source.Table)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
}
