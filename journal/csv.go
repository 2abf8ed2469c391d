package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/trade"
)

var (
	TradeHeader = []string{
		"trade_id", "symbol", "direction", "entry_time", "entry_price", "qty", "initial_stop", "target",
		"exit_time", "exit_price", "exit_reason", "r", "pnl", "planned_risk", "rr", "risk_pct",
	}
	TimelineHeader = []string{
		"timestamp", "open", "high", "low", "close", "atr", "regime", "signal", "position", "sl", "tp", "state",
	}
)

// WriteTradesCSV writes recs with a header row.
func WriteTradesCSV(w io.Writer, recs []trade.TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TradeHeader); err != nil {
		return err
	}
	for _, t := range recs {
		if err := cw.Write([]string{
			t.ID,
			t.Symbol,
			t.Direction.String(),
			t.EntryTime.UTC().Format(time.RFC3339),
			f(t.EntryPrice),
			f(t.Qty),
			f(t.InitialStop),
			optional(t.Target),
			t.ExitTime.UTC().Format(time.RFC3339),
			f(t.ExitPrice),
			string(t.ExitReason),
			f(t.R),
			f(t.PnL),
			f(t.PlannedRisk),
			optional(t.RR),
			optional(t.RiskPct),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTimelineCSV writes one row per processed bar with a header row.
// Unset values (ATR during warmup, stop and target while flat) are empty.
func WriteTimelineCSV(w io.Writer, recs []backtest.TimelineRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TimelineHeader); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write([]string{
			r.Time.UTC().Format(time.RFC3339),
			f(r.Open),
			f(r.High),
			f(r.Low),
			f(r.Close),
			optional(r.ATR),
			string(r.Regime),
			direction(r.Signal),
			direction(r.Position),
			optional(r.Stop),
			optional(r.Target),
			string(r.State),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeFile creates path (and its directory) and fills it with write.
func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(fh); err != nil {
		_ = fh.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return fh.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

func optional(x float64) string {
	if x == 0 || math.IsNaN(x) {
		return ""
	}
	return f(x)
}

func direction(d market.Direction) string {
	if !d.Valid() {
		return ""
	}
	return d.String()
}
