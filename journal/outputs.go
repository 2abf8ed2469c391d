package journal

import (
	"context"
	"io"
	"path/filepath"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/walkforward"
)

// Outputs writes each symbol's records under Dir:
//
//	<Dir>/<fold>/<SYMBOL>_trades.csv
//	<Dir>/<fold>/<SYMBOL>_timeline.csv
//
// and, when SQLite is set, journals the trades under RunID. Failed symbols
// write nothing.
type Outputs struct {
	Dir      string
	Timeline bool
	SQLite   *SQLite
	RunID    string
}

var _ backtest.Sink = (*Outputs)(nil)

func (o *Outputs) WriteResult(ctx context.Context, w walkforward.WindowSpec, r backtest.SymbolResult) error {
	if r.Failed() {
		return nil
	}
	dir := filepath.Join(o.Dir, w.Name())

	err := writeFile(filepath.Join(dir, r.Symbol+"_trades.csv"), func(wr io.Writer) error {
		return WriteTradesCSV(wr, r.Trades)
	})
	if err != nil {
		return err
	}

	if o.Timeline {
		err := writeFile(filepath.Join(dir, r.Symbol+"_timeline.csv"), func(wr io.Writer) error {
			return WriteTimelineCSV(wr, r.Timeline)
		})
		if err != nil {
			return err
		}
	}

	if o.SQLite != nil {
		return o.SQLite.RecordTrades(ctx, o.RunID, w.Name(), r.Trades)
	}
	return nil
}
