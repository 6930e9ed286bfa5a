package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"taplive/internal/config"
	"taplive/pkg/eventlog"
	"taplive/pkg/harness"
	"taplive/pkg/report"
)

// runConfig holds flag values for the run command. Zero values mean the
// flag was not given and config/env apply.
type runConfig struct {
	reporter     string
	color        bool
	noColor      bool
	timeout      int
	jobs         int
	watch        bool
	noRecord     bool
	dbPath       string
	interpreters map[string]string
}

// runEnv is everything a reporter needs for one run.
type runEnv struct {
	out         io.Writer
	logger      *log.Logger
	styles      Styles
	color       bool
	recorder    *eventlog.Recorder
	run         *report.Run
	programs    []harness.Program
	harnessOpts harness.Options
}

// newRunCmd creates the "taplive run" subcommand.
func newRunCmd() *cobra.Command {
	var flags runConfig

	cmd := &cobra.Command{
		Use:   "run [flags] [--] <file|dir>...",
		Short: "Run TAP test programs with a live report",
		Long: "Runs every test program concurrently and reports as results arrive.\n" +
			"Directories are searched recursively. Files run directly when executable,\n" +
			"otherwise through the interpreter configured for their extension.\n" +
			"Exits non-zero when any test fails.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveRunConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runTests(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
		},
	}

	cmd.Flags().StringVarP(&flags.reporter, "reporter", "R", "", "reporter: live or plain (default live on a terminal, else plain)")
	cmd.Flags().BoolVarP(&flags.color, "color", "c", false, "force colour output")
	cmd.Flags().BoolVarP(&flags.noColor, "no-color", "C", false, "disable colour output")
	cmd.Flags().IntVarP(&flags.timeout, "timeout", "t", 0, "per-program timeout in seconds, 0 disables (default $TAP_TIMEOUT or 120)")
	cmd.Flags().IntVarP(&flags.jobs, "jobs", "j", 0, "programs to run at once (default number of CPUs)")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "rerun when watched files change")
	cmd.Flags().BoolVar(&flags.noRecord, "no-record", false, "do not store the run in the history database")
	cmd.Flags().StringVar(&flags.dbPath, "db", "", "history database path (default $TAPLIVE_HOME/history.db)")
	cmd.Flags().StringToStringVarP(&flags.interpreters, "interpreter", "i", nil, "interpreter per extension, e.g. -i .ts=tsx")
	cmd.MarkFlagsMutuallyExclusive("color", "no-color")

	return cmd
}

// settings is the fully resolved configuration of one invocation.
type settings struct {
	config.Config
	color   bool
	paths   *Paths
	timeout time.Duration
}

// resolveRunConfig layers defaults, the config file, the environment and
// flags, in that order.
func resolveRunConfig(cmd *cobra.Command, flags runConfig) (settings, error) {
	wd, err := os.Getwd()
	if err != nil {
		return settings{}, fmt.Errorf("get working dir: %w", err)
	}
	cfg, _, err := config.Load(wd)
	if err != nil {
		return settings{}, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return settings{}, err
	}

	fs := cmd.Flags()
	if fs.Changed("reporter") {
		cfg.Reporter = flags.reporter
	}
	if fs.Changed("timeout") {
		cfg.Timeout = flags.timeout
	}
	if fs.Changed("jobs") {
		cfg.Jobs = flags.jobs
	}
	if flags.noRecord {
		off := false
		cfg.Record = &off
	}
	if flags.dbPath != "" {
		cfg.DBPath = flags.dbPath
	}
	for ext, interp := range flags.interpreters {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Interpreters[ext] = interp
	}
	if err := cfg.Validate(); err != nil {
		return settings{}, err
	}

	paths, err := ResolvePaths()
	if err != nil {
		return settings{}, fmt.Errorf("resolve paths: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = paths.DBPath
	}

	out := cmd.OutOrStdout()
	if cfg.Reporter == "" {
		cfg.Reporter = config.ReporterPlain
		if isTerminal(out) {
			cfg.Reporter = config.ReporterLive
		}
	}

	var color bool
	switch {
	case flags.color:
		color = true
	case flags.noColor:
		color = false
	case cfg.Color != nil:
		color = *cfg.Color
	default:
		color = isTerminal(out) && os.Getenv("NO_COLOR") == ""
	}

	s := settings{Config: cfg, color: color, paths: paths, timeout: time.Duration(cfg.Timeout) * time.Second}
	s.Watch = watchPaths(cfg.Watch, flags.watch)
	return s, nil
}

// watchPaths returns nil unless watching was requested.
func watchPaths(configured []string, requested bool) []string {
	if !requested {
		return nil
	}
	if len(configured) == 0 {
		return []string{"."}
	}
	return configured
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// runTests runs once, or repeatedly in watch mode until ctx is done.
func runTests(ctx context.Context, s settings, out, errOut io.Writer, args []string) error {
	logger, closeLog, err := setupLogging(s, errOut)
	if err != nil {
		return err
	}
	defer closeLog()

	if len(s.Watch) == 0 {
		return runOnce(ctx, s, out, logger, args)
	}

	watchList := s.Watch
	if len(watchList) == 1 && watchList[0] == "." {
		watchList = args
	}
	watcher := initWatcher(watchList, logger)
	if watcher == nil {
		return runOnce(ctx, s, out, logger, args)
	}
	defer watcher.Close()

	for {
		err := runOnce(ctx, s, out, logger, args)
		if err != nil && !errors.Is(err, errRunFailed) {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintln(errOut, "watching for changes, ctrl+c to stop")
		if !waitForChange(ctx, watcher, logger) {
			return nil
		}
	}
}

// runOnce discovers programs, runs them under the configured reporter and
// returns errRunFailed when the run is not ok.
func runOnce(ctx context.Context, s settings, out io.Writer, logger *log.Logger, args []string) error {
	programs, err := harness.Discover(args, s.Interpreters, logger)
	if err != nil {
		return err
	}
	if len(programs) == 0 {
		return fmt.Errorf("no test programs found in %s", strings.Join(args, " "))
	}

	run := report.NewRun(uuid.NewString(), time.Now())
	agg := report.NewAggregator(run)

	var w *eventlog.Writer
	if s.Recording() {
		w, err = eventlog.OpenWriter(s.DBPath)
		if err != nil {
			logger.Printf("eventlog: %v (history disabled)", err)
			w = nil
		} else {
			defer w.Close()
		}
	}

	env := runEnv{
		out:      out,
		logger:   logger,
		styles:   NewStyles(DefaultTheme(), s.color),
		color:    s.color,
		recorder: eventlog.NewRecorder(ctx, agg, w, logger),
		run:      run,
		programs: programs,
		harnessOpts: harness.Options{
			Jobs:    s.Jobs,
			Timeout: s.timeout,
			Logger:  logger,
		},
	}

	if s.Reporter == config.ReporterLive {
		err = runLive(ctx, env)
	} else {
		err = runPlain(ctx, env)
	}
	if err != nil {
		return err
	}
	if sum := run.Summary(); sum == nil || !sum.OK {
		return errRunFailed
	}
	return nil
}

// setupLogging returns the logger shared by the harness and event log.
// The live reporter owns the terminal, so its logs go to a file when
// TAPLIVE_DEBUG is set and are discarded otherwise.
func setupLogging(s settings, errOut io.Writer) (*log.Logger, func(), error) {
	if s.Reporter != config.ReporterLive {
		return log.New(errOut, "taplive: ", 0), func() {}, nil
	}
	if os.Getenv("TAPLIVE_DEBUG") == "" {
		return log.New(io.Discard, "", 0), func() {}, nil
	}
	if err := os.MkdirAll(s.paths.Home, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", s.paths.Home, err)
	}
	f, err := tea.LogToFile(s.paths.DebugLog, "taplive")
	if err != nil {
		return nil, nil, fmt.Errorf("open debug log: %w", err)
	}
	return log.Default(), func() { _ = f.Close() }, nil
}
