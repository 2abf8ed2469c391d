package trade

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/pkg/errs"
	"github.com/rustyeddy/barsim/pkg/id"
)

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// State is the lifecycle stage of a position as reported on the timeline.
type State string

const (
	StateFlat      State = "FLAT"
	StateEntered   State = "ENTERED"
	StateBreakeven State = "BREAKEVEN_ARMED"
	StateTrailing  State = "TRAILING"
	StateClosed    State = "CLOSED"
)

// Position is a single open trade. It is owned by the engine run for its
// symbol and mutated only by a Manager.
type Position struct {
	ID          string
	Symbol      string
	Direction   market.Direction
	EntryPrice  float64
	EntryTime   time.Time
	Qty         float64
	InitialStop float64
	Target      float64 // 0 = no target
	Stop        float64 // current protective stop

	BreakevenArmed bool
	TrailingActive bool
	Status         Status
}

// ValidateEntry checks a proposed entry: a positive entry price, a stop on
// the losing side of entry and a non-zero target on the winning side.
func ValidateEntry(dir market.Direction, entry, stop, target float64) error {
	switch {
	case !dir.Valid():
		return fmt.Errorf("%w: direction %d", errs.ErrInvalidPosition, dir)
	case !finite(entry) || entry <= 0:
		return fmt.Errorf("%w: entry price %g", errs.ErrInvalidPosition, entry)
	case !finite(stop) || stop <= 0:
		return fmt.Errorf("%w: stop %g", errs.ErrInvalidPosition, stop)
	case !finite(target) || target < 0:
		return fmt.Errorf("%w: target %g", errs.ErrInvalidPosition, target)
	}

	d := float64(dir)
	if d*(entry-stop) <= 0 {
		return fmt.Errorf("%w: %s stop %g on wrong side of entry %g", errs.ErrInvalidPosition, dir, stop, entry)
	}
	if target != 0 && d*(target-entry) <= 0 {
		return fmt.Errorf("%w: %s target %g on wrong side of entry %g", errs.ErrInvalidPosition, dir, target, entry)
	}
	return nil
}

// NewPosition validates and opens a position.
func NewPosition(symbol string, dir market.Direction, entry float64, at time.Time, qty, stop, target float64) (*Position, error) {
	if err := ValidateEntry(dir, entry, stop, target); err != nil {
		return nil, err
	}
	if !finite(qty) || qty <= 0 {
		return nil, fmt.Errorf("%w: quantity %g", errs.ErrInvalidPosition, qty)
	}

	return &Position{
		ID:          id.At(at),
		Symbol:      symbol,
		Direction:   dir,
		EntryPrice:  entry,
		EntryTime:   at,
		Qty:         qty,
		InitialStop: stop,
		Target:      target,
		Stop:        stop,
		Status:      StatusOpen,
	}, nil
}

// Risk is the per-unit distance between entry and the initial stop.
func (p *Position) Risk() float64 {
	return math.Abs(p.EntryPrice - p.InitialStop)
}

func (p *Position) State() State {
	switch {
	case p == nil:
		return StateFlat
	case p.Status == StatusClosed:
		return StateClosed
	case p.TrailingActive:
		return StateTrailing
	case p.BreakevenArmed:
		return StateBreakeven
	}
	return StateEntered
}

// Close terminates the position and returns its exit event. A position
// closes exactly once.
func (p *Position) Close(at time.Time, price float64, reason ExitReason) (ExitEvent, error) {
	if p.Status != StatusOpen {
		return ExitEvent{}, fmt.Errorf("%w: position %s already closed", errs.ErrInvalidPosition, p.ID)
	}
	p.Status = StatusClosed
	return ExitEvent{
		TradeID: p.ID,
		Time:    at,
		Price:   price,
		Reason:  reason,
		R:       RealizedR(p.Direction, p.EntryPrice, p.InitialStop, price),
	}, nil
}

// tighten moves the stop to level if that is more protective and reports
// whether it moved.
func (p *Position) tighten(level float64) bool {
	if float64(p.Direction)*(level-p.Stop) > 0 {
		p.Stop = level
		return true
	}
	return false
}

func (p *Position) stopHit(b market.Bar) bool {
	if p.Direction == market.Long {
		return b.Low <= p.Stop
	}
	return b.High >= p.Stop
}

func (p *Position) targetHit(b market.Bar) bool {
	if p.Target == 0 {
		return false
	}
	if p.Direction == market.Long {
		return b.High >= p.Target
	}
	return b.Low <= p.Target
}

// stopReason names the protective tier the stop has reached.
func (p *Position) stopReason() ExitReason {
	switch {
	case p.TrailingActive:
		return ExitTSL
	case p.BreakevenArmed:
		return ExitBE
	}
	return ExitSL
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
