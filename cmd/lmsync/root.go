package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/bassista/go_lmsync/internal/app"
	"github.com/bassista/go_lmsync/internal/config"
	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/syncerr"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Fixtures string
	Offline  bool
}

var validFormats = []string{"text", "json"}

// Exit codes.
const (
	exitFailure = 1 // sync or command failure
	exitOffline = 3 // the network was unreachable; cached data was served
)

func exitCode(err error) int {
	if syncerr.Is(err, syncerr.KindOffline) {
		return exitOffline
	}
	return exitFailure
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "lmsync",
		Short: "lmsync - offline-first LMS sync engine",
		Long: `Keeps a local copy of LMS data (courses, assignments, settings) in sync
with the server. Use cases are run by name; see "lmsync usecases".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			// stdout carries command output
			logger.Logger.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Fixtures, "fixtures", "", "serve responses from a YAML fixture file instead of the API")
	cmd.PersistentFlags().BoolVar(&opts.Offline, "offline", false, "start with the network reported unreachable")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newViewCommand(opts))
	cmd.AddCommand(newWarmCommand(opts))
	cmd.AddCommand(newUseCasesCommand(opts))
	cmd.AddCommand(newLedgerCommand(opts))

	return cmd
}

// openApp loads configuration, applies the global flags and bootstraps the
// application. One-shot commands never watch the data file; the persistence
// scheduler still runs so Shutdown flushes their writes.
func openApp(cmd *cobra.Command, opts *rootOptions, watch bool) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	level := cfg.Misc.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	logLevel := logger.SetLevel(level)
	logger.WithComponent("main").Debugf("log level set to: %s", logLevel.String())

	if opts.Fixtures != "" {
		cfg.Sync.FixturesPath = opts.Fixtures
	}
	if opts.Offline {
		cfg.Sync.Offline = true
	}
	cfg.Data.Watch = cfg.Data.Watch && watch

	a, err := app.Bootstrap(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if err := a.StartWatchers(); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

var errSyncFailed = errors.New("sync failed")
