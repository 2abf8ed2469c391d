package indicators

import (
	"github.com/rustyeddy/barsim/market"
)

// SMA returns the simple moving average of the last period closes of bars.
// ok is false when there are fewer than period bars.
func SMA(bars []market.Bar, period int) (v float64, ok bool) {
	if period <= 0 || len(bars) < period {
		return 0, false
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period), true
}
