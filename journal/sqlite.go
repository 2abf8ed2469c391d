package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/barsim/trade"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordRun(ctx context.Context, r Run) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, created, mode, start_time, end_time, symbols, config)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Mode, r.Start.UTC(), r.End.UTC(),
		strings.Join(r.Symbols, ","), string(r.Config),
	)
	return err
}

// RecordTrades stores one fold's trades for a symbol in a single
// transaction.
func (j *SQLite) RecordTrades(ctx context.Context, runID, fold string, recs []trade.TradeRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
		(trade_id, run_id, fold, symbol, direction, qty, entry_price, entry_time,
		 initial_stop, target, exit_price, exit_time, exit_reason, r, pnl,
		 planned_risk, rr, risk_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range recs {
		if _, err := stmt.ExecContext(ctx,
			t.ID, runID, fold, t.Symbol, int(t.Direction), t.Qty, t.EntryPrice, t.EntryTime.UTC(),
			t.InitialStop, t.Target, t.ExitPrice, t.ExitTime.UTC(), string(t.ExitReason), t.R, t.PnL,
			t.PlannedRisk, t.RR, t.RiskPct,
		); err != nil {
			return fmt.Errorf("insert trade %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
