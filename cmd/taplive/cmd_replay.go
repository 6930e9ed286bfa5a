package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taplive/pkg/report"
)

// replayConfig holds configuration for the replay command.
type replayConfig struct {
	dbPath  string
	noColor bool
	table   bool
}

// newReplayCmd creates the "taplive replay" subcommand.
func newReplayCmd() *cobra.Command {
	var cfg replayConfig

	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Re-render a recorded run",
		Long: "Feeds the stored events of a run through a fresh aggregator and prints\n" +
			"its failure log and summary. Defaults to the most recent run; a unique\n" +
			"ID prefix is accepted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := openHistory(cfg.dbPath)
			if err != nil {
				return err
			}
			defer reader.Close()

			ctx := cmd.Context()
			var runID string
			if len(args) == 1 {
				runID = args[0]
			} else {
				latest, err := reader.Latest(ctx)
				if err != nil {
					return fmt.Errorf("latest run: %w", err)
				}
				runID = latest.ID
			}

			run, err := reader.Replay(ctx, runID)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			color := !cfg.noColor && isTerminal(w) && os.Getenv("NO_COLOR") == ""
			styles := NewStyles(DefaultTheme(), color)
			fmt.Fprintf(w, "run %s started %s\n", run.ID(), run.OpenedAt().Local().Format("2006-01-02 15:04:05"))

			v := report.Project(run, run.OpenedAt())
			for _, l := range v.Log {
				fmt.Fprintln(w, renderLine(l, styles))
			}
			if !run.Closed() {
				fmt.Fprintln(w, styles.Violation.Render("run did not end; showing recorded events only"))
				return nil
			}
			if s := run.Summary(); cfg.table && len(s.Timings) > 0 {
				fmt.Fprint(w, renderTimings(s, color))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.dbPath, "db", "", "history database path (default $TAPLIVE_HOME/history.db)")
	cmd.Flags().BoolVarP(&cfg.noColor, "no-color", "C", false, "disable colour output")
	cmd.Flags().BoolVar(&cfg.table, "table", true, "print the per-test timing table")

	return cmd
}
