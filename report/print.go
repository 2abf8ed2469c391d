package report

import (
	"fmt"
	"io"
	"slices"

	"github.com/rustyeddy/barsim/trade"
)

func printSummary(w io.Writer, title string, s Summary) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, "--------------------------------------------------")
	if s.Error != "" {
		fmt.Fprintf(w, "FAILED:        %s\n\n", s.Error)
		return
	}
	fmt.Fprintf(w, "Trades:        %d\n", s.TradeCount)
	for _, r := range trade.ExitReasons {
		if n := s.ExitReasonCounts[r]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", r+":", n)
		}
	}
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", s.WinRate*100)
	fmt.Fprintf(w, "Avg R:         %.3f\n", s.AvgR)
	fmt.Fprintf(w, "Median R:      %.3f\n", s.MedianR)
	fmt.Fprintf(w, "Sum R:         %.3f\n", s.SumR)
	fmt.Fprintf(w, "Stability:     %.3f\n", s.StabilityRatio)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", s.NetPnL)
	fmt.Fprintln(w)
}

// Print writes a human-readable report of every summary, in key order,
// followed by the overall totals.
func Print(w io.Writer, summaries map[string]Summary, overall Summary) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Summary")
	fmt.Fprintln(w, "==================================================")

	keys := make([]string, 0, len(summaries))
	for k := range summaries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		printSummary(w, k, summaries[k])
	}

	printSummary(w, "Overall", overall)
}
