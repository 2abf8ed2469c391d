package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	mode TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	symbols TEXT NOT NULL,
	config TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	fold TEXT NOT NULL,
	symbol TEXT NOT NULL,
	direction INTEGER NOT NULL,
	qty REAL NOT NULL,
	entry_price REAL NOT NULL,
	entry_time DATETIME NOT NULL,
	initial_stop REAL NOT NULL,
	target REAL NOT NULL,
	exit_price REAL NOT NULL,
	exit_time DATETIME NOT NULL,
	exit_reason TEXT NOT NULL,
	r REAL NOT NULL,
	pnl REAL NOT NULL,
	planned_risk REAL NOT NULL DEFAULT 0,
	rr REAL NOT NULL DEFAULT 0,
	risk_pct REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, fold, symbol);
CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
`
