package strategy

import (
	"fmt"

	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/pkg/errs"
)

// PullbackResumption enters with the trend on the first close back through
// the moving average after a close against it: long in TREND_UP when the
// previous close was below its MA and this close is at or above, short in
// TREND_DOWN mirrored. Stops and targets are left to the engine.
type PullbackResumption struct {
	MALookback int
}

var _ SignalProvider = PullbackResumption{}

func NewPullbackResumption(lookback int) (PullbackResumption, error) {
	if lookback <= 0 {
		return PullbackResumption{}, fmt.Errorf("%w: ma_lookback must be positive, got %d", errs.ErrConfiguration, lookback)
	}
	return PullbackResumption{MALookback: lookback}, nil
}

func (p PullbackResumption) Signal(bars []market.Bar, regime market.Regime) (*EntrySignal, error) {
	n := len(bars)
	if n < p.MALookback+1 || !regime.Trending() {
		return nil, nil
	}
	ma, _ := indicators.SMA(bars, p.MALookback)
	prevMA, _ := indicators.SMA(bars[:n-1], p.MALookback)
	cur, prev := bars[n-1].Close, bars[n-2].Close

	switch regime {
	case market.TrendUp:
		if prev < prevMA && cur >= ma {
			return &EntrySignal{Direction: market.Long}, nil
		}
	case market.TrendDown:
		if prev > prevMA && cur <= ma {
			return &EntrySignal{Direction: market.Short}, nil
		}
	}
	return nil, nil
}
