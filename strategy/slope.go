package strategy

import (
	"fmt"

	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/pkg/errs"
)

// SlopeRegime is TREND_UP when the short SMA of closes is above the long
// SMA, TREND_DOWN when below, and RANGE otherwise or until NLong bars exist.
type SlopeRegime struct {
	NShort int
	NLong  int
}

var _ RegimeProvider = SlopeRegime{}

func NewSlopeRegime(nShort, nLong int) (SlopeRegime, error) {
	if nShort <= 0 || nLong <= 0 || nShort >= nLong {
		return SlopeRegime{}, fmt.Errorf("%w: slope regime needs 0 < n_short < n_long, got %d/%d",
			errs.ErrConfiguration, nShort, nLong)
	}
	return SlopeRegime{NShort: nShort, NLong: nLong}, nil
}

func (s SlopeRegime) Classify(bars []market.Bar) (market.Regime, error) {
	long, ok := indicators.SMA(bars, s.NLong)
	if !ok {
		return market.Range, nil
	}
	short, _ := indicators.SMA(bars, s.NShort)

	switch {
	case short > long:
		return market.TrendUp, nil
	case short < long:
		return market.TrendDown, nil
	}
	return market.Range, nil
}
