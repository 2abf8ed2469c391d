package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/barsim/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite trade journal",
	Long: `Query and display trades recorded by "barsim run --sqlite".

Subcommands:
  trade  - Show one trade by ID
  run    - Show a run and every trade it produced
  day    - List trades closed on a specific UTC day

Examples:
  barsim journal trade 01HV0000000000000000000001 -d barsim.sqlite
  barsim journal run 01HVRUN0000000000000000000
  barsim journal day 2024-04-10`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Show one trade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return journalTrade(cmd.Context(), cmd.OutOrStdout(), journalDBPath, args[0])
	},
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Show a run and its trades",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return journalRun(cmd.Context(), cmd.OutOrStdout(), journalDBPath, args[0])
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a UTC day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return journalDay(cmd.Context(), cmd.OutOrStdout(), journalDBPath, args[0])
	},
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalRunCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "barsim.sqlite", "path to SQLite journal DB")
}

func withJournal(path string, fn func(j *journal.SQLite) error) error {
	j, err := journal.NewSQLite(path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()
	return fn(j)
}

func journalTrade(ctx context.Context, out io.Writer, dbPath, tradeID string) error {
	return withJournal(dbPath, func(j *journal.SQLite) error {
		e, err := j.GetTrade(ctx, tradeID)
		if err != nil {
			return fmt.Errorf("get trade: %w", err)
		}
		writeEntry(out, e)
		return nil
	})
}

func journalRun(ctx context.Context, out io.Writer, dbPath, runID string) error {
	return withJournal(dbPath, func(j *journal.SQLite) error {
		r, err := j.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}
		entries, err := j.ListTradesByRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("query trades: %w", err)
		}

		fmt.Fprintf(out, "Run %s (%s)\n", r.RunID, r.Mode)
		fmt.Fprintf(out, "  Window:  %s .. %s\n", r.Start.UTC().Format(time.DateOnly), r.End.UTC().Format(time.DateOnly))
		fmt.Fprintf(out, "  Symbols: %s\n", strings.Join(r.Symbols, ","))
		fmt.Fprintf(out, "  Created: %s\n\n", r.Created.UTC().Format(time.RFC3339))
		return writeEntries(out, entries)
	})
}

func journalDay(ctx context.Context, out io.Writer, dbPath, day string) error {
	start, end, err := dayBounds(time.UTC, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	return withJournal(dbPath, func(j *journal.SQLite) error {
		entries, err := j.ListTradesClosedBetween(ctx, start, end)
		if err != nil {
			return fmt.Errorf("query trades: %w", err)
		}
		return writeEntries(out, entries)
	})
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.Add(24 * time.Hour), nil
}

func writeEntry(out io.Writer, e journal.Entry) {
	fmt.Fprintf(out, "Trade %s\n", e.ID)
	fmt.Fprintf(out, "  Run:       %s (%s)\n", e.RunID, e.Fold)
	fmt.Fprintf(out, "  Symbol:    %s %s\n", e.Symbol, e.Direction)
	fmt.Fprintf(out, "  Entry:     %s @ %g qty %g\n", e.EntryTime.UTC().Format(time.RFC3339), e.EntryPrice, e.Qty)
	fmt.Fprintf(out, "  Stop:      %g  Target: %g\n", e.InitialStop, e.Target)
	fmt.Fprintf(out, "  Exit:      %s @ %g (%s)\n", e.ExitTime.UTC().Format(time.RFC3339), e.ExitPrice, e.ExitReason)
	fmt.Fprintf(out, "  Result:    R %.4g  PnL %.2f  risk %.2f\n", e.R, e.PnL, e.PlannedRisk)
}

func writeEntries(out io.Writer, entries []journal.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "no trades")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRADE\tFOLD\tSYMBOL\tDIR\tEXIT TIME\tREASON\tR\tPNL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%.4g\t%.2f\n",
			e.ID, e.Fold, e.Symbol, e.Direction,
			e.ExitTime.UTC().Format(time.RFC3339), e.ExitReason, e.R, e.PnL)
	}
	return tw.Flush()
}
