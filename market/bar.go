package market

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/barsim/pkg/errs"
)

// Bar is one minute of OHLCV data. Bars are immutable once loaded.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Direction of a position: +1 long, -1 short.
type Direction int8

const (
	Long  Direction = +1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	}
	return "NONE"
}

// Valid reports whether d is Long or Short.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// Regime is a coarse market classification.
type Regime string

const (
	TrendUp   Regime = "TREND_UP"
	TrendDown Regime = "TREND_DOWN"
	Range     Regime = "RANGE"
)

// Trending reports whether r allows directional entries.
func (r Regime) Trending() bool {
	return r == TrendUp || r == TrendDown
}

// ValidateBars checks that prices are finite and that bars are strictly
// increasing in time. Gaps are fine; duplicates and reversals are not.
func ValidateBars(bars []Bar) error {
	for i, b := range bars {
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: bar %d at %s has a non-finite price", errs.ErrDataIntegrity,
					i, b.Time.Format(time.RFC3339))
			}
		}
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return fmt.Errorf("%w: bar %d at %s not after %s", errs.ErrDataIntegrity,
				i, bars[i].Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}
