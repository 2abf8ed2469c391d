package journal

import (
	"time"

	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/trade"
)

var t0 = time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)

func sampleTrades() []trade.TradeRecord {
	return []trade.TradeRecord{
		{
			ID: "01HV0000000000000000000001", Symbol: "BTCUSDT", Direction: market.Long,
			EntryTime: t0, EntryPrice: 100, Qty: 20, InitialStop: 95, Target: 110,
			ExitTime: t0.Add(30 * time.Minute), ExitPrice: 95, ExitReason: trade.ExitSL, R: -1, PnL: -100,
			PlannedRisk: 100, RR: 2, RiskPct: 0.01,
		},
		{
			ID: "01HV0000000000000000000002", Symbol: "BTCUSDT", Direction: market.Short,
			EntryTime: t0.Add(time.Hour), EntryPrice: 50, Qty: 2.5, InitialStop: 52,
			ExitTime: t0.Add(3 * time.Hour), ExitPrice: 45, ExitReason: trade.ExitTSL, R: 2.5, PnL: 12.5,
			PlannedRisk: 5,
		},
	}
}
