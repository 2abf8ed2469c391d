package cmd

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var journalT0 = time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)

func newTestJournal(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "barsim.sqlite")
	j, err := journal.NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.RecordRun(t.Context(), journal.Run{
		RunID:   "RUN1",
		Created: journalT0,
		Mode:    "insample",
		Start:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Symbols: []string{"BTCUSDT", "ETHUSDT"},
		Config:  []byte(`{}`),
	}))
	require.NoError(t, j.RecordTrades(t.Context(), "RUN1", "insample", []trade.TradeRecord{
		{
			ID: "btc-1", Symbol: "BTCUSDT", Direction: market.Long,
			EntryTime: journalT0, EntryPrice: 100, Qty: 20, InitialStop: 95, Target: 110,
			ExitTime: journalT0.Add(30 * time.Minute), ExitPrice: 95, ExitReason: trade.ExitSL,
			R: -1, PnL: -100, PlannedRisk: 100, RR: 2,
		},
		{
			ID: "eth-2", Symbol: "ETHUSDT", Direction: market.Short,
			EntryTime: journalT0.Add(20 * time.Hour), EntryPrice: 50, Qty: 2.5, InitialStop: 52,
			ExitTime: journalT0.Add(26 * time.Hour), ExitPrice: 45, ExitReason: trade.ExitTSL,
			R: 2.5, PnL: 12.5, PlannedRisk: 5,
		},
	}))
	return path
}

func TestJournalTrade(t *testing.T) {
	t.Parallel()

	db := newTestJournal(t)

	var out bytes.Buffer
	require.NoError(t, journalTrade(t.Context(), &out, db, "btc-1"))
	assert.Contains(t, out.String(), "Trade btc-1")
	assert.Contains(t, out.String(), "Run:       RUN1 (insample)")
	assert.Contains(t, out.String(), "Symbol:    BTCUSDT LONG")
	assert.Contains(t, out.String(), "Exit:      2024-04-10T09:30:00Z @ 95 (SL)")
	assert.Contains(t, out.String(), "PnL -100.00")

	err := journalTrade(t.Context(), &out, db, "missing")
	assert.ErrorContains(t, err, `trade "missing" not found`)
}

func TestJournalRun(t *testing.T) {
	t.Parallel()

	db := newTestJournal(t)

	var out bytes.Buffer
	require.NoError(t, journalRun(t.Context(), &out, db, "RUN1"))
	s := out.String()
	assert.Contains(t, s, "Run RUN1 (insample)")
	assert.Contains(t, s, "Window:  2024-04-01 .. 2024-05-01")
	assert.Contains(t, s, "Symbols: BTCUSDT,ETHUSDT")
	assert.Contains(t, s, "btc-1")
	assert.Contains(t, s, "eth-2")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("btc-1")), bytes.Index(out.Bytes(), []byte("eth-2")))

	assert.ErrorContains(t, journalRun(t.Context(), &out, db, "RUN2"), `run "RUN2" not found`)
}

func TestJournalDay(t *testing.T) {
	t.Parallel()

	db := newTestJournal(t)

	tests := []struct {
		name    string
		day     string
		want    []string
		notWant []string
		errMsg  string
	}{
		{name: "first day", day: "2024-04-10", want: []string{"btc-1", "SL"}, notWant: []string{"eth-2"}},
		{name: "next day", day: "2024-04-11", want: []string{"eth-2", "TSL", "12.50"}, notWant: []string{"btc-1"}},
		{name: "empty day", day: "2024-04-12", want: []string{"no trades"}},
		{name: "bad date", day: "04/10/2024", errMsg: "date:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			err := journalDay(t.Context(), &out, db, tt.day)
			if tt.errMsg != "" {
				assert.ErrorContains(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, out.String(), w)
			}
		})
	}
}

func TestDayBounds(t *testing.T) {
	t.Parallel()

	start, end, err := dayBounds(time.UTC, "2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), end)
}
