package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TimelordUK/mtail/internal/backend"
	"github.com/TimelordUK/mtail/internal/config"
	"github.com/TimelordUK/mtail/internal/consolidate"
	"github.com/TimelordUK/mtail/internal/diag"
	"github.com/TimelordUK/mtail/internal/ui"
)

type options struct {
	configPath string
	fromStart  bool
	prime      int
	logFile    string
	logLevel   string
	backend    string
	capacity   int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	root := &cobra.Command{
		Use:   "mtail [flags] <file>...",
		Short: "Follow one or more log files in a virtualized terminal view",
		Long: `mtail tails log files, parses JSON and plain text lines into entries and
keeps the newest entry in view until you scroll away.

Example:
  mtail --prime 500 app.log worker.log`,
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	f := root.Flags()
	f.StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/mtail/config.toml)")
	f.BoolVar(&opts.fromStart, "from-start", false, "read every file from its first line")
	f.IntVar(&opts.prime, "prime", 0, "load the last N lines of each file before tailing")
	f.StringVar(&opts.logFile, "log-file", "", "write diagnostics to this file")
	f.StringVar(&opts.logLevel, "log-level", "info", "diagnostic level (debug, info, warn, error)")
	f.StringVar(&opts.backend, "backend", "", "layout backend: auto, always or never")
	f.IntVar(&opts.capacity, "capacity", 0, "entries kept before the oldest are evicted (0 keeps the config value)")

	root.AddCommand(newConfigCmd())
	root.AddCommand(newBenchCmd())
	return root
}

// applyFlags overrides config values with flags the user set
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts options) {
	f := cmd.Flags()
	if f.Changed("from-start") {
		cfg.Ingest.FromStart = opts.fromStart
	}
	if f.Changed("prime") {
		cfg.Ingest.PrimeLines = opts.prime
	}
	if f.Changed("backend") {
		cfg.Backend.Mode = string(backend.ParseMode(opts.backend))
	}
	if f.Changed("capacity") && opts.capacity != 0 {
		cfg.Stream.Capacity = opts.capacity
	}
}

func run(cmd *cobra.Command, opts options, paths []string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg, opts)

	log, closeLog, err := diag.Open(opts.logFile, opts.logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	merger, err := consolidate.NewMerger(consolidate.OptionsFromConfig(cfg, paths), log)
	if err != nil {
		return err
	}

	watchPath := opts.configPath
	if watchPath == "" {
		watchPath = config.GetConfigPath()
	}
	watcher, err := config.NewWatcher(watchPath, log)
	if err != nil {
		log.Warn().Err(err).Str("path", watchPath).Msg("config reload disabled")
		watcher = nil
	}

	name := merger.Names()[0]
	if n := merger.SourceCount(); n > 1 {
		name = fmt.Sprintf("%d files", n)
	}
	model := ui.NewModel(ui.ModelOptions{
		Name:    name,
		Config:  cfg,
		Accel:   backend.NewAccelerated(),
		Merger:  merger,
		Watcher: watcher,
		Log:     log,
	})
	defer model.Close()

	model.Pane().Append(time.Now(), merger.Prime())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return merger.Run(ctx)
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, runErr := p.Run()
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("ingest stopped")
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigPath())
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config unless one exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.GetConfigPath()
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	return cfgCmd
}

func newBenchCmd() *cobra.Command {
	var entries, rounds int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare the reference and accelerated layout engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accel := backend.NewAccelerated()
			if !accel.Available() {
				return fmt.Errorf("accelerated engine unavailable on this machine")
			}
			heights := backend.SyntheticHeights(entries, 1, 12, 42)
			rep := backend.Compare(backend.Reference{}, accel, heights, 1, rounds, 1e-6)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "entries      %s x %d rounds\n", humanize.Comma(int64(rep.Entries)), rep.Rounds)
			fmt.Fprintf(out, "recalculate  reference %s  accelerated %s\n", rep.Reference, rep.Accelerated)
			fmt.Fprintf(out, "locate       reference %s  accelerated %s\n", rep.LocateRef, rep.LocateAccel)
			fmt.Fprintf(out, "equivalent   %t\n", rep.Equivalent)
			if rep.Err != nil {
				return fmt.Errorf("accelerated engine failed: %w", rep.Err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&entries, "entries", 1_000_000, "number of synthetic entries")
	cmd.Flags().IntVar(&rounds, "rounds", 5, "recalculations per engine")
	return cmd
}
