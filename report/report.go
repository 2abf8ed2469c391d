// Package report aggregates closed trades into summary statistics.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/trade"
	"github.com/rustyeddy/barsim/walkforward"
)

// Summary holds the statistics for one set of trades. With no trades every
// statistic is zero.
type Summary struct {
	TradeCount       int                      `json:"trade_count"`
	ExitReasonCounts map[trade.ExitReason]int `json:"exit_reason_counts"`
	WinRate          float64                  `json:"win_rate"`
	AvgR             float64                  `json:"avg_R"`
	MedianR          float64                  `json:"median_R"`
	SumR             float64                  `json:"sum_R"`
	StabilityRatio   float64                  `json:"stability_ratio"`
	NetPnL           float64                  `json:"net_pnl"`
	Error            string                   `json:"error,omitempty"`
}

// Aggregate summarizes records.
//
//	win_rate        = (TSL + BE + TARGET) / trade_count
//	stability_ratio = (TSL + BE) / max(SL, 1)
func Aggregate(records []trade.TradeRecord) Summary {
	s := Summary{
		TradeCount:       len(records),
		ExitReasonCounts: make(map[trade.ExitReason]int, len(trade.ExitReasons)),
	}
	for _, r := range trade.ExitReasons {
		s.ExitReasonCounts[r] = 0
	}
	if len(records) == 0 {
		return s
	}

	rs := make([]float64, 0, len(records))
	for _, rec := range records {
		s.ExitReasonCounts[rec.ExitReason]++
		s.SumR += rec.R
		s.NetPnL += rec.PnL
		rs = append(rs, rec.R)
	}

	c := s.ExitReasonCounts
	s.WinRate = float64(c[trade.ExitTSL]+c[trade.ExitBE]+c[trade.ExitTarget]) / float64(len(records))
	s.AvgR = s.SumR / float64(len(records))
	s.MedianR = median(rs)
	s.StabilityRatio = float64(c[trade.ExitTSL]+c[trade.ExitBE]) / float64(max(c[trade.ExitSL], 1))
	return s
}

func median(xs []float64) float64 {
	slices.Sort(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}

// Key names a symbol's summary: the bare symbol for single-window modes,
// SYMBOL/fold_N for walkforward folds.
func Key(symbol string, w walkforward.WindowSpec) string {
	if w.Mode == walkforward.Walkforward {
		return symbol + "/" + w.Name()
	}
	return symbol
}

// Build summarizes every symbol of every fold. Failed symbols carry their
// error and no statistics.
func Build(folds []backtest.FoldResult) map[string]Summary {
	out := make(map[string]Summary)
	for _, f := range folds {
		for _, r := range f.Symbols {
			s := Aggregate(r.Trades)
			if r.Failed() {
				s.Error = r.Err.Error()
			}
			out[Key(r.Symbol, f.Window)] = s
		}
	}
	return out
}

// Overall summarizes the trades of every successful symbol and fold.
func Overall(folds []backtest.FoldResult) Summary {
	var all []trade.TradeRecord
	for _, f := range folds {
		for _, r := range f.Symbols {
			if !r.Failed() {
				all = append(all, r.Trades...)
			}
		}
	}
	return Aggregate(all)
}

// WriteJSON writes summaries as indented JSON, creating parent directories.
func WriteJSON(path string, summaries map[string]Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create summary dir: %w", err)
	}
	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
