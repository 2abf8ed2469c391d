// Package indicators provides technical analysis indicators for the bar loop.
package indicators

import (
	"iter"
	"math"

	"github.com/rustyeddy/barsim/market"
)

// ATR is a streaming Average True Range with Wilder smoothing.
//
// The first bar only seeds the previous close. The next period bars
// accumulate true ranges whose mean is the first ATR value, so the
// indicator becomes ready on the bar at index period. After that each
// update is O(1):
//
//	atr = (atr*(period-1) + tr) / period
type ATR struct {
	period      int
	atr         float64
	count       int
	warmupSum   float64
	prevClose   float64
	hasPrevious bool
}

// NewATR creates a new Average True Range indicator. Periods below 1 are
// treated as 1.
func NewATR(period int) *ATR {
	if period < 1 {
		period = 1
	}
	return &ATR{period: period}
}

// Update consumes the next closed bar.
func (a *ATR) Update(b market.Bar) {
	if !a.hasPrevious {
		a.prevClose = b.Close
		a.hasPrevious = true
		return
	}

	tr := TrueRange(b, a.prevClose)
	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
	} else {
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}
	a.prevClose = b.Close
}

func (a *ATR) Ready() bool {
	return a.count >= a.period
}

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(b market.Bar, prevClose float64) float64 {
	return math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
}

// ComputeATR lazily yields (index, ATR) for every bar from index period
// onward, driving the same accumulator the bar loop uses. Each iteration
// starts from a fresh accumulator, so the sequence can be ranged over
// repeatedly. A value at index i depends only on bars[:i+1].
func ComputeATR(bars []market.Bar, period int) iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		if period < 1 {
			return
		}
		a := NewATR(period)
		for i, b := range bars {
			a.Update(b)
			if !a.Ready() {
				continue
			}
			if !yield(i, a.Value()) {
				return
			}
		}
	}
}
