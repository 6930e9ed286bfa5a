package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taplive/pkg/eventlog"
)

// historyConfig holds configuration for the history command.
type historyConfig struct {
	limit   int
	dbPath  string
	noColor bool
}

// newHistoryCmd creates the "taplive history" subcommand.
func newHistoryCmd() *cobra.Command {
	var cfg historyConfig

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long:  "Lists the most recent runs stored in the history database, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader, err := openHistory(cfg.dbPath)
			if err != nil {
				return err
			}
			defer reader.Close()

			runs, err := reader.Runs(cmd.Context(), cfg.limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "no runs recorded")
				return nil
			}
			fmt.Fprint(w, renderHistory(runs, !cfg.noColor && isTerminal(w) && os.Getenv("NO_COLOR") == ""))
			return nil
		},
	}

	cmd.Flags().IntVarP(&cfg.limit, "limit", "n", 20, "number of runs to show, 0 for all")
	cmd.Flags().StringVar(&cfg.dbPath, "db", "", "history database path (default $TAPLIVE_HOME/history.db)")
	cmd.Flags().BoolVarP(&cfg.noColor, "no-color", "C", false, "disable colour output")

	return cmd
}

// openHistory opens the history database read-only, resolving the default
// path when dbPath is empty.
func openHistory(dbPath string) (*eventlog.Reader, error) {
	if dbPath == "" {
		paths, err := ResolvePaths()
		if err != nil {
			return nil, fmt.Errorf("resolve paths: %w", err)
		}
		dbPath = paths.DBPath
	}
	reader, err := eventlog.NewReader(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", dbPath, err)
	}
	return reader, nil
}
