// Package metrics records backtest run counters on a private Prometheus
// registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder struct {
	reg *prometheus.Registry

	symbolRuns  *prometheus.CounterVec
	barsTotal   *prometheus.CounterVec
	tradesTotal *prometheus.CounterVec
	realizedR   *prometheus.HistogramVec
	runDuration *prometheus.HistogramVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		symbolRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsim_symbol_runs_total",
				Help: "Symbol backtests completed, by fold and status",
			},
			[]string{"fold", "status"},
		),
		barsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsim_bars_processed_total",
				Help: "Bars processed by the engine",
			},
			[]string{"symbol"},
		),
		tradesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsim_trades_total",
				Help: "Closed trades by exit reason",
			},
			[]string{"symbol", "exit_reason"},
		),
		realizedR: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barsim_trade_realized_r",
				Help:    "Realized R multiple per closed trade",
				Buckets: []float64{-2, -1, -0.5, 0, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"symbol"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barsim_symbol_run_duration_seconds",
				Help:    "Wall time to load and simulate one symbol",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"fold"},
		),
	}
}

// RecordRun records a completed symbol run.
func (r *Recorder) RecordRun(fold, symbol string, bars int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.symbolRuns.WithLabelValues(fold, "ok").Inc()
	r.barsTotal.WithLabelValues(symbol).Add(float64(bars))
	r.runDuration.WithLabelValues(fold).Observe(elapsed.Seconds())
}

// RecordFailure records a symbol run that was aborted.
func (r *Recorder) RecordFailure(fold string) {
	if r == nil {
		return
	}
	r.symbolRuns.WithLabelValues(fold, "failed").Inc()
}

// RecordTrade records one closed trade.
func (r *Recorder) RecordTrade(symbol, exitReason string, realizedR float64) {
	if r == nil {
		return
	}
	r.tradesTotal.WithLabelValues(symbol, exitReason).Inc()
	r.realizedR.WithLabelValues(symbol).Observe(realizedR)
}

// WriteTextfile writes every metric in the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
