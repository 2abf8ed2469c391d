package backtest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/pkg/errs"
	"github.com/rustyeddy/barsim/pkg/metrics"
	"github.com/rustyeddy/barsim/walkforward"
	"golang.org/x/sync/errgroup"
)

// Sink receives each finished symbol result. Calls are made from a single
// goroutine, in symbol order, after the whole window has run.
type Sink interface {
	WriteResult(ctx context.Context, w walkforward.WindowSpec, r SymbolResult) error
}

// SymbolResult is one symbol's outcome for a window. A failed symbol keeps
// only its name and error.
type SymbolResult struct {
	Result
	Err error
}

func (r SymbolResult) Failed() bool { return r.Err != nil }

type FoldResult struct {
	Window  walkforward.WindowSpec
	Symbols []SymbolResult
}

// Runner fans symbol backtests out over a bounded worker pool. Symbols
// share no state; each run is strictly sequential over its own bars.
type Runner struct {
	Source    market.BarSource
	Providers Providers
	Params    func(symbol string) Params
	Workers   int // <= 0 uses GOMAXPROCS
	Log       zerolog.Logger
	Metrics   *metrics.Recorder
	Sink      Sink
}

// Validate checks every symbol's parameters up front so a configuration
// error aborts before any bar is processed.
func (r *Runner) Validate(symbols []string) error {
	if r.Source == nil {
		return errors.New("backtest: Source is required")
	}
	if r.Params == nil {
		return errors.New("backtest: Params is required")
	}
	if r.Providers.Regime == nil || r.Providers.Signal == nil {
		return fmt.Errorf("%w: regime and signal providers are required", errs.ErrConfiguration)
	}
	if len(symbols) == 0 {
		return fmt.Errorf("%w: no symbols", errs.ErrConfiguration)
	}
	for _, sym := range symbols {
		if err := r.Params(sym).Validate(); err != nil {
			return fmt.Errorf("%s: %w", sym, err)
		}
	}
	return nil
}

// RunFolds runs every window in order. Symbol failures are reported in the
// results; only configuration, cancellation and sink errors stop the run.
func (r *Runner) RunFolds(ctx context.Context, windows iter.Seq[walkforward.WindowSpec], symbols []string) ([]FoldResult, error) {
	if err := r.Validate(symbols); err != nil {
		return nil, err
	}

	var out []FoldResult
	for w := range windows {
		r.Log.Info().Str("fold", w.Name()).
			Time("train_start", w.TrainStart).Time("train_end", w.TrainEnd).
			Time("test_start", w.TestStart).Time("test_end", w.TestEnd).
			Msg("window start")

		fr, err := r.RunWindow(ctx, w, symbols)
		if err != nil {
			return out, err
		}
		out = append(out, fr)
	}
	if len(out) == 0 {
		r.Log.Warn().Msg("schedule produced no windows")
	}
	return out, nil
}

// RunWindow runs all symbols over the window's test range.
func (r *Runner) RunWindow(ctx context.Context, w walkforward.WindowSpec, symbols []string) (FoldResult, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]SymbolResult, len(symbols))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, sym := range symbols {
		g.Go(func() error {
			results[i] = r.runSymbol(ctx, w, sym)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return FoldResult{}, err
	}

	fold := w.Name()
	for _, res := range results {
		if res.Failed() {
			r.Metrics.RecordFailure(fold)
		} else {
			for _, tr := range res.Trades {
				r.Metrics.RecordTrade(res.Symbol, string(tr.ExitReason), tr.R)
			}
		}
		if r.Sink != nil {
			if err := r.Sink.WriteResult(ctx, w, res); err != nil {
				return FoldResult{}, fmt.Errorf("write %s/%s: %w", fold, res.Symbol, err)
			}
		}
	}

	return FoldResult{Window: w, Symbols: results}, nil
}

func (r *Runner) runSymbol(ctx context.Context, w walkforward.WindowSpec, sym string) SymbolResult {
	fold := w.Name()
	log := r.Log.With().Str("fold", fold).Str("symbol", sym).Logger()
	start := time.Now()

	fail := func(err error) SymbolResult {
		log.Error().Err(err).Msg("symbol failed")
		return SymbolResult{Result: Result{Symbol: sym}, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return SymbolResult{Result: Result{Symbol: sym}, Err: err}
	}

	bars, err := r.Source.LoadBars(ctx, sym, w.TestStart, w.TestEnd)
	if err != nil {
		return fail(fmt.Errorf("load bars: %w", err))
	}
	if len(bars) == 0 {
		log.Warn().Msg("no bars in window")
	}

	res, err := Run(sym, bars, r.Providers, r.Params(sym))
	if err != nil {
		return fail(err)
	}

	elapsed := time.Since(start)
	r.Metrics.RecordRun(fold, sym, res.Bars, elapsed)
	log.Info().Int("bars", res.Bars).Int("trades", len(res.Trades)).Int("skipped", res.Skipped).
		Dur("elapsed", elapsed).Msg("symbol done")

	return SymbolResult{Result: res}
}
