package trade

import (
	"time"

	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/risk"
)

type ExitReason string

const (
	ExitSL        ExitReason = "SL"
	ExitBE        ExitReason = "BE"
	ExitTSL       ExitReason = "TSL"
	ExitTarget    ExitReason = "TARGET"
	ExitEndOfData ExitReason = "END_OF_DATA"
)

// ExitReasons lists every reason in reporting order.
var ExitReasons = []ExitReason{ExitSL, ExitBE, ExitTSL, ExitTarget, ExitEndOfData}

type ExitEvent struct {
	TradeID string
	Time    time.Time
	Price   float64
	Reason  ExitReason
	R       float64
}

// TradeRecord is a closed trade: the position's opening attributes joined
// with its exit. Records are never mutated after creation.
type TradeRecord struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Direction   market.Direction `json:"direction"`
	EntryTime   time.Time        `json:"entry_time"`
	EntryPrice  float64          `json:"entry_price"`
	Qty         float64          `json:"qty"`
	InitialStop float64          `json:"initial_stop"`
	Target      float64          `json:"target,omitempty"`
	ExitTime    time.Time        `json:"exit_time"`
	ExitPrice   float64          `json:"exit_price"`
	ExitReason  ExitReason       `json:"exit_reason"`
	R           float64          `json:"r"`
	PnL         float64          `json:"pnl"`
	PlannedRisk float64          `json:"planned_risk"`       // qty * |entry - initial stop|
	RR          float64          `json:"rr,omitempty"`       // planned reward to risk; 0 without a target
	RiskPct     float64          `json:"risk_pct,omitempty"` // planned risk over equity at entry
}

// NewRecord joins a closed position with its exit event. RiskPct needs
// the sizing equity and is left for the caller.
func NewRecord(p *Position, ev ExitEvent) TradeRecord {
	return TradeRecord{
		ID:          p.ID,
		Symbol:      p.Symbol,
		Direction:   p.Direction,
		EntryTime:   p.EntryTime,
		EntryPrice:  p.EntryPrice,
		Qty:         p.Qty,
		InitialStop: p.InitialStop,
		Target:      p.Target,
		ExitTime:    ev.Time,
		ExitPrice:   ev.Price,
		ExitReason:  ev.Reason,
		R:           ev.R,
		PnL:         p.Qty * float64(p.Direction) * (ev.Price - p.EntryPrice),
		PlannedRisk: risk.PlannedRisk(p.Qty, p.EntryPrice, p.InitialStop),
		RR:          risk.RR(p.EntryPrice, p.InitialStop, p.Target),
	}
}

// RealizedR is the exit's profit per unit in multiples of the initial risk.
// A zero-risk trade has R 0.
func RealizedR(dir market.Direction, entry, initialStop, exit float64) float64 {
	risk := entry - initialStop
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return 0
	}
	return float64(dir) * (exit - entry) / risk
}
