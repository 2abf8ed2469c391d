package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/trade"
)

const selectTrades = `
	SELECT trade_id, run_id, fold, symbol, direction, qty, entry_price, entry_time,
	       initial_stop, target, exit_price, exit_time, exit_reason, r, pnl,
	       planned_risk, rr, risk_pct
	FROM trades`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e      Entry
		dir    int
		reason string
	)
	err := s.Scan(
		&e.ID, &e.RunID, &e.Fold, &e.Symbol, &dir, &e.Qty, &e.EntryPrice, &e.EntryTime,
		&e.InitialStop, &e.Target, &e.ExitPrice, &e.ExitTime, &reason, &e.R, &e.PnL,
		&e.PlannedRisk, &e.RR, &e.RiskPct,
	)
	e.Direction = market.Direction(dir)
	e.ExitReason = trade.ExitReason(reason)
	return e, err
}

func collect(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single trade by ID.
func (j *SQLite) GetTrade(ctx context.Context, tradeID string) (Entry, error) {
	e, err := scanEntry(j.db.QueryRowContext(ctx, selectTrades+` WHERE trade_id = ?`, tradeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return Entry{}, err
	}
	return e, nil
}

// ListTradesByRun returns a run's trades ordered by fold, symbol and exit
// time.
func (j *SQLite) ListTradesByRun(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, selectTrades+`
		WHERE run_id = ?
		ORDER BY fold, symbol, exit_time`, runID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListTradesClosedBetween returns trades whose exit_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, selectTrades+`
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// GetRun returns a recorded run.
func (j *SQLite) GetRun(ctx context.Context, runID string) (Run, error) {
	var (
		r       Run
		symbols string
		config  string
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, mode, start_time, end_time, symbols, config
		FROM runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.Created, &r.Mode, &r.Start, &r.End, &symbols, &config)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %q not found", runID)
		}
		return Run{}, err
	}
	if symbols != "" {
		r.Symbols = strings.Split(symbols, ",")
	}
	r.Config = []byte(config)
	return r, nil
}
