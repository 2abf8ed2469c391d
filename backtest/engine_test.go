package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/pkg/errs"
	"github.com/rustyeddy/barsim/risk"
	"github.com/rustyeddy/barsim/strategy"
	"github.com/rustyeddy/barsim/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

// ohlc builds one-minute bars from [open, high, low, close] rows.
func ohlc(rows ...[4]float64) []market.Bar {
	out := make([]market.Bar, len(rows))
	for i, r := range rows {
		out[i] = market.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Open: r[0], High: r[1], Low: r[2], Close: r[3], Volume: 1}
	}
	return out
}

var quiet = [4]float64{100, 101, 99, 100} // true range 2

type fixedRegime struct {
	regime market.Regime
	seen   []int
}

func (f *fixedRegime) Classify(bars []market.Bar) (market.Regime, error) {
	f.seen = append(f.seen, len(bars))
	return f.regime, nil
}

// scripted fires the signal keyed by the index of the last visible bar.
type scripted map[int]*strategy.EntrySignal

func (s scripted) Signal(bars []market.Bar, _ market.Regime) (*strategy.EntrySignal, error) {
	return s[len(bars)-1], nil
}

type failing struct{ err error }

func (f failing) Classify([]market.Bar) (market.Regime, error) { return "", f.err }

func (f failing) Signal([]market.Bar, market.Regime) (*strategy.EntrySignal, error) { return nil, f.err }

func long() *strategy.EntrySignal { return &strategy.EntrySignal{Direction: market.Long} }

func testParams() Params {
	return Params{
		ATRPeriod: 1,
		SLMult:    2.5,
		Manager:   trade.Rules{},
		Sizing:    risk.Sizing{Equity: 10000, RiskPct: 0.01, LotStep: 1},
		EntryFill: FillClose,
	}
}

func providers(regime market.Regime, sig strategy.SignalProvider) Providers {
	return Providers{Regime: &fixedRegime{regime: regime}, Signal: sig}
}

func TestRun_StopLossTrade(t *testing.T) {
	t.Parallel()

	bars := ohlc(quiet, quiet, [4]float64{99, 100, 94, 96}, [4]float64{96, 97, 95, 96})
	res, err := Run("BTCUSDT", bars, providers(market.TrendUp, scripted{1: long()}), testParams())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, trade.ExitSL, tr.ExitReason)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 95.0, tr.InitialStop)
	assert.Equal(t, 95.0, tr.ExitPrice)
	assert.InDelta(t, -1.0, tr.R, 1e-12)
	assert.Equal(t, 20.0, tr.Qty)
	assert.InDelta(t, -100.0, tr.PnL, 1e-9)
	assert.InDelta(t, 100.0, tr.PlannedRisk, 1e-9)
	assert.InDelta(t, 0.01, tr.RiskPct, 1e-12)
	assert.Zero(t, tr.RR, "no target")
	assert.Equal(t, bars[1].Time, tr.EntryTime)
	assert.Equal(t, bars[2].Time, tr.ExitTime)

	require.Len(t, res.Timeline, 4)
	assert.True(t, math.IsNaN(res.Timeline[0].ATR))
	assert.Equal(t, 2.0, res.Timeline[1].ATR)
	assert.Equal(t, market.Long, res.Timeline[1].Signal)
	assert.Equal(t, market.Long, res.Timeline[1].Position)
	assert.Equal(t, 95.0, res.Timeline[1].Stop)
	assert.Equal(t, trade.StateEntered, res.Timeline[1].State)
	assert.Equal(t, trade.StateClosed, res.Timeline[2].State)
	assert.Equal(t, market.Direction(0), res.Timeline[2].Position)
	assert.Equal(t, trade.StateFlat, res.Timeline[3].State)
	assert.Equal(t, 10000.0, res.FinalEquity)
}

func TestRun_TargetFromATR(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.TPMult = 5
	bars := ohlc(quiet, quiet, [4]float64{100, 111, 99.5, 108})

	res, err := Run("X", bars, providers(market.TrendUp, scripted{1: long()}), p)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, 110.0, res.Trades[0].Target)
	assert.Equal(t, trade.ExitTarget, res.Trades[0].ExitReason)
	assert.InDelta(t, 2.0, res.Trades[0].R, 1e-12)
}

func TestRun_EndOfDataClosesOnce(t *testing.T) {
	t.Parallel()

	bars := ohlc(quiet, quiet, quiet, [4]float64{100, 102, 99, 101})
	res, err := Run("X", bars, providers(market.TrendUp, scripted{1: long()}), testParams())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, trade.ExitEndOfData, tr.ExitReason)
	assert.Equal(t, 101.0, tr.ExitPrice)
	assert.Equal(t, bars[3].Time, tr.ExitTime)
	assert.InDelta(t, 0.2, tr.R, 1e-12)
}

func TestRun_NoEligibleEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		regime market.Regime
		sig    strategy.SignalProvider
	}{
		{"no signals", market.TrendUp, scripted{}},
		{"range regime", market.Range, scripted{1: long(), 2: long()}},
		{"against the trend", market.TrendDown, scripted{1: long()}},
		{"before atr is ready", market.TrendUp, scripted{0: long()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := Run("X", ohlc(quiet, quiet, quiet), providers(tt.regime, tt.sig), testParams())
			require.NoError(t, err)
			assert.Empty(t, res.Trades)
			assert.Len(t, res.Timeline, 3)
			for _, rec := range res.Timeline {
				assert.Equal(t, trade.StateFlat, rec.State)
			}
		})
	}
}

func TestRun_EmptyBars(t *testing.T) {
	t.Parallel()

	res, err := Run("X", nil, providers(market.TrendUp, scripted{}), testParams())
	require.NoError(t, err)
	assert.Zero(t, res.Bars)
	assert.Empty(t, res.Trades)
	assert.Empty(t, res.Timeline)
}

func TestRun_NoReentryOnExitBar(t *testing.T) {
	t.Parallel()

	bars := ohlc(quiet, quiet, [4]float64{99, 100, 94, 96}, [4]float64{96, 97, 95, 96}, [4]float64{96, 97, 95, 96})
	sig := scripted{1: long(), 2: long(), 3: long()}

	res, err := Run("X", bars, providers(market.TrendUp, sig), testParams())
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, trade.ExitSL, res.Trades[0].ExitReason)
	assert.Equal(t, bars[3].Time, res.Trades[1].EntryTime)
	assert.Equal(t, trade.ExitEndOfData, res.Trades[1].ExitReason)
	assert.Equal(t, market.Direction(0), res.Timeline[2].Signal)
}

func TestRun_Compounding(t *testing.T) {
	t.Parallel()

	// The second entry sees ATR 5 (stop distance 12.5) after a -100 loss.
	bars := ohlc(quiet, quiet, [4]float64{99, 100, 94, 96}, quiet, quiet)
	sig := scripted{1: long(), 3: long()}

	for _, compound := range []bool{false, true} {
		p := testParams()
		p.Compound = compound
		res, err := Run("X", bars, providers(market.TrendUp, sig), p)
		require.NoError(t, err)
		require.Len(t, res.Trades, 2)

		if compound {
			assert.Equal(t, 7.0, res.Trades[1].Qty)
			assert.InDelta(t, 87.5/9900, res.Trades[1].RiskPct, 1e-12, "risk is measured against compounded equity")
			assert.InDelta(t, 9900.0, res.FinalEquity, 1e-9)
		} else {
			assert.Equal(t, 8.0, res.Trades[1].Qty)
			assert.InDelta(t, 0.01, res.Trades[1].RiskPct, 1e-12)
			assert.Equal(t, 10000.0, res.FinalEquity)
		}
	}
}

func TestRun_SizedToZeroIsSkipped(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.Sizing.Equity = 10
	res, err := Run("X", ohlc(quiet, quiet, quiet), providers(market.TrendUp, scripted{1: long()}), p)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 1, res.Skipped)
}

func TestRun_NextOpenFill(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.EntryFill = FillNextOpen
	bars := ohlc(quiet, quiet, [4]float64{101, 102, 100, 101}, [4]float64{101, 102, 100, 101})

	res, err := Run("X", bars, providers(market.TrendUp, scripted{1: long()}), p)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, bars[2].Time, tr.EntryTime)
	assert.Equal(t, 101.0, tr.EntryPrice)
	assert.Equal(t, 96.0, tr.InitialStop)
	assert.Equal(t, market.Long, res.Timeline[1].Signal)
	assert.Equal(t, trade.StateFlat, res.Timeline[1].State)
	assert.Equal(t, trade.StateEntered, res.Timeline[2].State)
}

func TestRun_NextOpenEdgeCases(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.EntryFill = FillNextOpen

	res, err := Run("X", ohlc(quiet, quiet), providers(market.TrendUp, scripted{1: long()}), p)
	require.NoError(t, err)
	assert.Empty(t, res.Trades, "a fill pending at end of data is dropped")

	sig := scripted{1: {Direction: market.Long, Stop: 99.5}}
	res, err = Run("X", ohlc(quiet, quiet, [4]float64{99, 99.5, 98, 99}), providers(market.TrendUp, sig), p)
	require.NoError(t, err)
	assert.Empty(t, res.Trades, "an open through the stop cancels the entry")
	assert.Equal(t, 1, res.Skipped)
}

func TestRun_ProvidersSeeOnlyThePast(t *testing.T) {
	t.Parallel()

	reg := &fixedRegime{regime: market.TrendUp}
	_, err := Run("X", ohlc(quiet, quiet, quiet, quiet, quiet), Providers{Regime: reg, Signal: scripted{}}, testParams())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, reg.seen)
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	bars := ohlc(quiet, quiet, quiet)

	_, err := Run("X", bars, Providers{Regime: failing{boom}, Signal: scripted{}}, testParams())
	assert.ErrorIs(t, err, boom)

	_, err = Run("X", bars, Providers{Regime: &fixedRegime{regime: market.TrendUp}, Signal: failing{boom}}, testParams())
	assert.ErrorIs(t, err, boom)

	bad := scripted{1: {Direction: market.Long, Stop: 105}}
	_, err = Run("X", bars, providers(market.TrendUp, bad), testParams())
	assert.ErrorIs(t, err, errs.ErrInvalidPosition)

	zeroRisk := scripted{1: {Direction: market.Long, Stop: 100}}
	_, err = Run("X", bars, providers(market.TrendUp, zeroRisk), testParams())
	assert.ErrorIs(t, err, errs.ErrInvalidPosition)

	dup := ohlc(quiet, quiet)
	dup[1].Time = dup[0].Time
	_, err = Run("X", dup, providers(market.TrendUp, scripted{}), testParams())
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)

	_, err = Run("X", bars, Providers{}, testParams())
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"atr period", func(p *Params) { p.ATRPeriod = 0 }},
		{"sl mult", func(p *Params) { p.SLMult = 0 }},
		{"tp mult", func(p *Params) { p.TPMult = -1 }},
		{"risk pct", func(p *Params) { p.Sizing.RiskPct = 0 }},
		{"manager", func(p *Params) { p.Manager = nil }},
		{"entry fill", func(p *Params) { p.EntryFill = "limit" }},
		{"breakeven without mode", func(p *Params) { p.Manager = trade.Rules{BreakevenTrigger: 1} }},
		{"trailing without mode", func(p *Params) {
			p.Manager = trade.Rules{TrailingEnabled: true, TrailActivation: 1, TrailATRMult: 1}
		}},
	}

	require.NoError(t, testParams().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := testParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), errs.ErrConfiguration)
		})
	}
}
