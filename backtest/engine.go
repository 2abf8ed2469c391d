package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/pkg/errs"
	"github.com/rustyeddy/barsim/risk"
	"github.com/rustyeddy/barsim/strategy"
	"github.com/rustyeddy/barsim/trade"
)

// EntryFill is the price an accepted signal is filled at.
type EntryFill string

const (
	// FillClose enters at the signal bar's close. The position is first
	// managed on the following bar.
	FillClose EntryFill = "close"
	// FillNextOpen enters at the next bar's open and manages the position
	// on that same bar.
	FillNextOpen EntryFill = "next_open"
)

// Providers are the regime and signal collaborators for a run.
type Providers struct {
	Regime strategy.RegimeProvider
	Signal strategy.SignalProvider
}

// Params configures one symbol run.
type Params struct {
	ATRPeriod int
	SLMult    float64 // ATR multiple for a stop the signal leaves unset
	TPMult    float64 // ATR multiple for a target the signal leaves unset; 0 = none
	Manager   trade.Manager
	Sizing    risk.Sizing
	Compound  bool // add realized P/L to sizing equity
	EntryFill EntryFill
}

// Validate rejects parameters that would make every bar meaningless. It
// runs before any bar is processed.
func (p Params) Validate() error {
	switch {
	case p.ATRPeriod <= 0:
		return fmt.Errorf("%w: atr_period must be positive, got %d", errs.ErrConfiguration, p.ATRPeriod)
	case p.SLMult <= 0:
		return fmt.Errorf("%w: sl_mult must be positive, got %g", errs.ErrConfiguration, p.SLMult)
	case p.TPMult < 0:
		return fmt.Errorf("%w: tp_mult must not be negative, got %g", errs.ErrConfiguration, p.TPMult)
	case p.Sizing.RiskPct <= 0:
		return fmt.Errorf("%w: risk_pct must be positive, got %g", errs.ErrConfiguration, p.Sizing.RiskPct)
	case p.Manager == nil:
		return fmt.Errorf("%w: no trade manager", errs.ErrConfiguration)
	}
	switch p.EntryFill {
	case FillClose, FillNextOpen:
	default:
		return fmt.Errorf("%w: unknown entry_fill %q", errs.ErrConfiguration, p.EntryFill)
	}
	if v, ok := p.Manager.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TimelineRecord is the engine state after processing one bar.
type TimelineRecord struct {
	Time     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	ATR      float64 // NaN until the ATR is ready
	Regime   market.Regime
	Signal   market.Direction // accepted entry signal on this bar, 0 if none
	Position market.Direction // open position after this bar, 0 if flat
	Stop     float64
	Target   float64
	State    trade.State
}

// Result is everything one symbol run produced.
type Result struct {
	Symbol      string
	Bars        int
	Trades      []trade.TradeRecord
	Timeline    []TimelineRecord
	Skipped     int // accepted signals sized to zero
	FinalEquity float64
}

type pendingEntry struct {
	sig *strategy.EntrySignal
	atr float64
}

// Run simulates one symbol over bars in timestamp order. At bar i the
// providers see bars[:i+1] and nothing later. A position still open after
// the last bar is closed at its close with END_OF_DATA.
//
// Any provider, position or sizing error aborts the run; no partial result
// is returned.
func Run(symbol string, bars []market.Bar, prov Providers, p Params) (Result, error) {
	if prov.Regime == nil || prov.Signal == nil {
		return Result{}, fmt.Errorf("%w: regime and signal providers are required", errs.ErrConfiguration)
	}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if err := market.ValidateBars(bars); err != nil {
		return Result{}, fmt.Errorf("%s: %w", symbol, err)
	}

	var (
		res     = Result{Symbol: symbol, Bars: len(bars), Timeline: make([]TimelineRecord, 0, len(bars))}
		atr     = indicators.NewATR(p.ATRPeriod)
		equity  = p.Sizing.Equity
		pos     *trade.Position
		pending *pendingEntry
	)

	closeTrade := func(ev trade.ExitEvent) {
		rec := trade.NewRecord(pos, ev)
		// equity has not moved since the entry was sized.
		rec.RiskPct = risk.RiskPct(rec.PlannedRisk, equity)
		res.Trades = append(res.Trades, rec)
		if p.Compound {
			equity += rec.PnL
		}
		pos = nil
	}

	for i, b := range bars {
		atr.Update(b)
		curATR := math.NaN()
		if atr.Ready() {
			curATR = atr.Value()
		}
		prefix := bars[:i+1]

		regime, err := prov.Regime.Classify(prefix)
		if err != nil {
			return Result{}, fmt.Errorf("%s: regime at %s: %w", symbol, b.Time.Format(time.RFC3339), err)
		}

		rec := TimelineRecord{
			Time: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
			ATR: curATR, Regime: regime,
		}

		if pending != nil {
			pos, err = enter(symbol, pending.sig, b.Open, b.Time, pending.atr, equity, p, &res)
			pending = nil
			if err != nil {
				return Result{}, err
			}
		}

		closed := false
		if pos != nil {
			ev, err := p.Manager.Advance(pos, b, curATR)
			if err != nil {
				return Result{}, fmt.Errorf("%s: manage %s at %s: %w", symbol, pos.ID, b.Time.Format(time.RFC3339), err)
			}
			if ev != nil {
				closeTrade(*ev)
				closed = true
			}
		}

		if pos == nil && !closed && atr.Ready() {
			sig, err := prov.Signal.Signal(prefix, regime)
			if err != nil {
				return Result{}, fmt.Errorf("%s: signal at %s: %w", symbol, b.Time.Format(time.RFC3339), err)
			}
			if eligible(sig, regime) {
				rec.Signal = sig.Direction
				if p.EntryFill == FillNextOpen {
					pending = &pendingEntry{sig: sig, atr: curATR}
				} else {
					pos, err = enter(symbol, sig, b.Close, b.Time, curATR, equity, p, &res)
					if err != nil {
						return Result{}, err
					}
				}
			}
		}

		rec.State = trade.StateFlat
		switch {
		case pos != nil:
			rec.Position = pos.Direction
			rec.Stop = pos.Stop
			rec.Target = pos.Target
			rec.State = pos.State()
		case closed:
			rec.State = trade.StateClosed
		}
		res.Timeline = append(res.Timeline, rec)
	}

	if pos != nil {
		last := bars[len(bars)-1]
		ev, err := pos.Close(last.Time, last.Close, trade.ExitEndOfData)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", symbol, err)
		}
		closeTrade(ev)
	}

	res.FinalEquity = equity
	return res, nil
}

// eligible requires a signal that agrees with a trending regime.
func eligible(sig *strategy.EntrySignal, regime market.Regime) bool {
	if sig == nil || !regime.Trending() {
		return false
	}
	return (regime == market.TrendUp && sig.Direction == market.Long) ||
		(regime == market.TrendDown && sig.Direction == market.Short)
}

// enter prices, validates and sizes an entry at price. A nil position with a
// nil error means the entry was skipped.
func enter(symbol string, sig *strategy.EntrySignal, price float64, at time.Time, atr, equity float64,
	p Params, res *Result) (*trade.Position, error) {

	d := float64(sig.Direction)
	stop, target := sig.Stop, sig.Target
	if stop == 0 {
		stop = price - d*p.SLMult*atr
	}
	if target == 0 && p.TPMult > 0 {
		target = price + d*p.TPMult*atr
	}

	if p.EntryFill == FillNextOpen && sig.Direction.Valid() && (d*(price-stop) <= 0 || (target != 0 && d*(target-price) <= 0)) {
		// The open gapped through a level the signal fixed on the prior bar.
		res.Skipped++
		return nil, nil
	}
	if err := trade.ValidateEntry(sig.Direction, price, stop, target); err != nil {
		return nil, fmt.Errorf("%s: entry at %s: %w", symbol, at.Format(time.RFC3339), err)
	}

	sizing := p.Sizing
	sizing.Equity = equity
	qty, err := sizing.Size(price, stop)
	if err != nil {
		return nil, fmt.Errorf("%s: size at %s: %w", symbol, at.Format(time.RFC3339), err)
	}
	if qty == 0 {
		res.Skipped++
		return nil, nil
	}
	return trade.NewPosition(symbol, sig.Direction, price, at, qty, stop, target)
}
