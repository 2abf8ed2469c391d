package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/pkg/id"
	"github.com/rustyeddy/barsim/pkg/logger"
	"github.com/rustyeddy/barsim/pkg/metrics"
	"github.com/rustyeddy/barsim/report"
	"github.com/rustyeddy/barsim/walkforward"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Backtest the configured symbols over the selected windows",
	Long: `Run a backtest using settings from a configuration file, with any
flag overriding the file.

Outputs are written under <outputs_dir>/backtest:
  <fold>/<SYMBOL>_trades.csv
  <fold>/<SYMBOL>_timeline.csv
  summary.json

Examples:
  barsim run -f barsim.yaml
  barsim run -f barsim.yaml --mode oos --oos_last_k_months 2
  barsim run -f barsim.yaml --mode walkforward --walkforward train=3,test=1,step=1
  barsim run --symbols BTCUSDT,ETHUSDT --start 2025-01-01 --end 2025-04-01 --dry-run`,
	RunE: runRun,
}

var runOpts runFlags

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runOpts.configPath, "config", "f", "", "path to config file (YAML or JSON); defaults are used when empty")
	f.StringVar(&runOpts.mode, "mode", "", "insample, oos or walkforward")
	f.StringVar(&runOpts.start, "start", "", "start of the data range (2006-01-02 or RFC 3339)")
	f.StringVar(&runOpts.end, "end", "", "end of the data range, exclusive")
	f.IntVar(&runOpts.oosLastK, "oos_last_k_months", 1, "months at the end of the range used for oos mode")
	f.StringVar(&runOpts.walkforward, "walkforward", "", "walk-forward spec, e.g. train=3,test=1,step=1")
	f.StringSliceVar(&runOpts.symbols, "symbols", nil, "comma separated symbols")
	f.IntVar(&runOpts.workers, "workers", 0, "concurrent symbol runs (0 = one per CPU)")
	f.StringVar(&runOpts.entryFill, "entry-fill", "", "close or next_open")
	f.StringVar(&runOpts.dataRoot, "data-root", "", "root of the per-symbol CSV tree")
	f.StringVar(&runOpts.outputs, "outputs", "", "outputs directory")
	f.StringVar(&runOpts.sqlitePath, "sqlite", "", "journal trades to this SQLite database")
	f.BoolVar(&runOpts.dryRun, "dry-run", false, "print the resolved configuration and windows, then exit")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if runOpts.configPath != "" {
		var err error
		if cfg, err = config.Load(runOpts.configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if err := runOpts.apply(cfg, cmd.Flags().Changed); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	sched, err := cfg.Schedule(time.Now())
	if err != nil {
		return err
	}
	windows, err := walkforward.Generate(sched)
	if err != nil {
		return err
	}

	if runOpts.dryRun {
		return printPlan(cmd.OutOrStdout(), cfg, windows)
	}

	prov, err := buildProviders(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closeSrc, err := openSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer closeSrc()

	runID := id.New()
	outDir := filepath.Join(cfg.Paths.OutputsDir, "backtest")
	sink := &journal.Outputs{Dir: outDir, Timeline: cfg.Journal.Timeline, RunID: runID}

	if cfg.Journal.SQLitePath != "" {
		db, err := journal.NewSQLite(cfg.Journal.SQLitePath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()

		resolved, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		err = db.RecordRun(ctx, journal.Run{
			RunID:   runID,
			Created: time.Now().UTC(),
			Mode:    string(sched.Mode),
			Start:   sched.Start,
			End:     sched.End,
			Symbols: cfg.Symbols,
			Config:  resolved,
		})
		if err != nil {
			return err
		}
		sink.SQLite = db
	}

	rec := metrics.New()
	runner := &backtest.Runner{
		Source:    src,
		Providers: prov,
		Params:    symbolParams(cfg),
		Workers:   cfg.Backtest.Workers,
		Log:       log,
		Metrics:   rec,
		Sink:      sink,
	}

	log.Info().
		Str("run_id", runID).
		Str("mode", string(sched.Mode)).
		Time("start", sched.Start).
		Time("end", sched.End).
		Strs("symbols", cfg.Symbols).
		Msg("backtest starting")

	began := time.Now()
	folds, err := runner.RunFolds(ctx, windows, cfg.Symbols)
	if err != nil {
		return err
	}

	summaries := report.Build(folds)
	summaryPath := filepath.Join(outDir, "summary.json")
	if err := report.WriteJSON(summaryPath, summaries); err != nil {
		return err
	}
	report.Print(cmd.OutOrStdout(), summaries, report.Overall(folds))

	if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		log.Warn().Err(err).Str("path", cfg.Metrics.Textfile).Msg("metrics textfile not written")
	}

	if failed := logDone(log, folds, summaryPath, time.Since(began)); failed > 0 {
		return fmt.Errorf("%d symbol run(s) failed; see %s", failed, summaryPath)
	}
	return nil
}

func logDone(log zerolog.Logger, folds []backtest.FoldResult, summaryPath string, elapsed time.Duration) int {
	failed := 0
	for _, f := range folds {
		for _, s := range f.Symbols {
			if s.Failed() {
				failed++
			}
		}
	}
	ev := log.Info()
	if failed > 0 {
		ev = log.Warn().Int("failed", failed)
	}
	ev.Int("folds", len(folds)).
		Str("summary", summaryPath).
		Dur("elapsed", elapsed).
		Msg("backtest finished")
	return failed
}

// printPlan writes the resolved configuration and the evaluation windows.
func printPlan(w io.Writer, cfg *config.Config, windows iter.Seq[walkforward.WindowSpec]) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprintf(w, "# resolved configuration\n%s\n", data)

	plan := slices.Collect(windows)
	fmt.Fprintf(w, "# %d window(s)\n", len(plan))
	for _, win := range plan {
		fmt.Fprintf(w, "%s\n", win)
	}
	return nil
}
