// Package journal persists backtest output: per-fold CSV files and an
// optional SQLite trade journal.
package journal

import (
	"time"

	"github.com/rustyeddy/barsim/trade"
)

// Run describes one invocation of the backtester.
type Run struct {
	RunID   string
	Created time.Time
	Mode    string
	Start   time.Time
	End     time.Time
	Symbols []string
	Config  []byte // resolved configuration, JSON
}

// Entry is a stored trade with the run and fold that produced it.
type Entry struct {
	RunID string
	Fold  string
	trade.TradeRecord
}
