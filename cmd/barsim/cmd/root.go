package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "barsim",
	Short: "A bar-by-bar backtester for regime-gated strategies",
	Long: `Barsim replays historical bars for one or more symbols through a
regime classifier, an entry signal and an ATR-based trade manager.

It provides:
  - In-sample, out-of-sample and walk-forward evaluation windows
  - Risk-based position sizing with lot-step flooring
  - Breakeven and trailing stop management
  - Per-trade and per-bar CSV outputs, an optional SQLite journal
  - Per-symbol and per-fold summary statistics`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
