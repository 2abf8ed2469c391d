package trade

import (
	"fmt"
	"math"

	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/pkg/errs"
)

// Manager advances an open position by one closed bar and reports the exit
// if the bar closes it.
type Manager interface {
	Advance(p *Position, bar market.Bar, atr float64) (*ExitEvent, error)
}

// ProgressMode is the unit in which favourable movement of the close away
// from entry is measured.
type ProgressMode string

const (
	ProgressR      ProgressMode = "r"      // multiples of initial risk
	ProgressTarget ProgressMode = "target" // fraction of the distance to target
	ProgressPrice  ProgressMode = "price"  // absolute price units
	ProgressATR    ProgressMode = "atr"    // multiples of the current ATR
)

func (m ProgressMode) Valid() bool {
	switch m {
	case ProgressR, ProgressTarget, ProgressPrice, ProgressATR:
		return true
	}
	return false
}

// Rules is the stop, target, breakeven and trailing exit policy. Each bar
// is evaluated in that fixed order; a stop breach always wins over a target
// touched on the same bar.
type Rules struct {
	BreakevenMode    ProgressMode
	BreakevenTrigger float64 // <= 0 disables breakeven
	BreakevenOffset  float64 // price units beyond entry in the trade's favour

	TrailingEnabled        bool
	TrailMode              ProgressMode
	TrailActivation        float64
	TrailATRMult           float64
	TrailRequiresBreakeven bool

	// GapThrough fills a stop at the open when the bar opens beyond it.
	GapThrough bool
}

var _ Manager = Rules{}

// Validate rejects rules whose enabled features could never fire.
func (r Rules) Validate() error {
	if r.BreakevenTrigger > 0 && !r.BreakevenMode.Valid() {
		return fmt.Errorf("%w: breakeven enabled with unknown mode %q", errs.ErrConfiguration, r.BreakevenMode)
	}
	if math.IsNaN(r.BreakevenOffset) || math.IsInf(r.BreakevenOffset, 0) {
		return fmt.Errorf("%w: breakeven offset must be finite", errs.ErrConfiguration)
	}
	if !r.TrailingEnabled {
		return nil
	}
	switch {
	case !r.TrailMode.Valid():
		return fmt.Errorf("%w: trailing enabled with unknown mode %q", errs.ErrConfiguration, r.TrailMode)
	case !(r.TrailATRMult > 0):
		return fmt.Errorf("%w: trailing enabled with trail_atr_mult %g", errs.ErrConfiguration, r.TrailATRMult)
	case !(r.TrailActivation >= 0):
		return fmt.Errorf("%w: trail_activation must not be negative, got %g", errs.ErrConfiguration, r.TrailActivation)
	case r.TrailRequiresBreakeven && !(r.BreakevenTrigger > 0):
		return fmt.Errorf("%w: trailing requires breakeven but breakeven is disabled", errs.ErrConfiguration)
	}
	return nil
}

func (r Rules) Advance(p *Position, bar market.Bar, atr float64) (*ExitEvent, error) {
	if p == nil || p.Status != StatusOpen {
		return nil, fmt.Errorf("%w: advance on a position that is not open", errs.ErrInvalidPosition)
	}

	if p.stopHit(bar) {
		price := p.Stop
		if r.GapThrough {
			if p.Direction == market.Long {
				price = math.Min(price, bar.Open)
			} else {
				price = math.Max(price, bar.Open)
			}
		}
		ev, err := p.Close(bar.Time, price, p.stopReason())
		return &ev, err
	}

	if p.targetHit(bar) {
		ev, err := p.Close(bar.Time, p.Target, ExitTarget)
		return &ev, err
	}

	if !p.BreakevenArmed && r.BreakevenTrigger > 0 {
		if prog, ok := progress(p, r.BreakevenMode, bar.Close, atr); ok && prog >= r.BreakevenTrigger {
			level := p.EntryPrice + float64(p.Direction)*r.BreakevenOffset
			p.tighten(level)
			// Armed only once the stop has left its initial level and sits at
			// or beyond the breakeven level.
			d := float64(p.Direction)
			p.BreakevenArmed = d*(p.Stop-level) >= 0 && d*(p.Stop-p.InitialStop) > 0
		}
	}

	if r.TrailingEnabled && r.TrailATRMult > 0 && atr > 0 && (!r.TrailRequiresBreakeven || p.BreakevenArmed) {
		if prog, ok := progress(p, r.TrailMode, bar.Close, atr); ok && prog >= r.TrailActivation {
			if p.tighten(bar.Close - float64(p.Direction)*r.TrailATRMult*atr) {
				p.TrailingActive = true
			}
		}
	}

	return nil, nil
}

// progress reports how far price has moved in the trade's favour, in the
// units of mode. ok is false when the mode has no reference to measure by.
func progress(p *Position, mode ProgressMode, price, atr float64) (float64, bool) {
	move := float64(p.Direction) * (price - p.EntryPrice)
	switch mode {
	case ProgressR:
		if risk := p.Risk(); risk > 0 {
			return move / risk, true
		}
	case ProgressTarget:
		if p.Target != 0 {
			return move / math.Abs(p.Target-p.EntryPrice), true
		}
	case ProgressPrice:
		return move, true
	case ProgressATR:
		if atr > 0 && !math.IsNaN(atr) {
			return move / atr, true
		}
	}
	return 0, false
}
