package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/barsim/pkg/errs"
	"github.com/shopspring/decimal"
)

// Sizing holds the account-side inputs to SizePosition.
type Sizing struct {
	Equity  float64
	RiskPct float64 // 0.01 = 1% of equity at risk per trade
	MinQty  float64 // below this the trade is skipped
	LotStep float64 // quantity increment; <= 0 means continuous
}

// SizePosition converts a fixed fraction of equity at risk into a quantity:
//
//	qty = floor_to_lot(equity * riskPct / |entry - stop|)
//
// A zero quantity with a nil error means "no trade": the floored quantity
// fell below minQty or equity is exhausted. Zero-risk entries (entry == stop)
// and non-positive riskPct fail with errs.ErrInvalidRisk.
func SizePosition(equity, riskPct, entry, stop, minQty, lotStep float64) (float64, error) {
	for _, v := range []float64{equity, riskPct, entry, stop, minQty, lotStep} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: non-finite sizing input", errs.ErrInvalidRisk)
		}
	}
	if riskPct <= 0 {
		return 0, fmt.Errorf("%w: risk_pct must be positive, got %g", errs.ErrInvalidRisk, riskPct)
	}
	if entry == stop {
		return 0, fmt.Errorf("%w: entry equals stop (%g), zero risk per unit", errs.ErrInvalidRisk, entry)
	}
	if equity <= 0 {
		return 0, nil
	}

	riskAmt := decimal.NewFromFloat(equity).Mul(decimal.NewFromFloat(riskPct))
	perUnit := decimal.NewFromFloat(entry).Sub(decimal.NewFromFloat(stop)).Abs()
	qty := riskAmt.DivRound(perUnit, 16)

	if lotStep > 0 {
		lot := decimal.NewFromFloat(lotStep)
		qty = qty.Div(lot).Floor().Mul(lot)
	}

	out := qty.InexactFloat64()
	if out <= 0 || out < minQty {
		return 0, nil
	}
	return out, nil
}

// Size is SizePosition with the account inputs taken from s.
func (s Sizing) Size(entry, stop float64) (float64, error) {
	return SizePosition(s.Equity, s.RiskPct, entry, stop, s.MinQty, s.LotStep)
}
