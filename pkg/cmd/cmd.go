// Package cmd assembles the hud CLI: a cobra root command carrying the
// shared --log-level/--verbose flags plus the run, replay, status, stop,
// and wait subcommands. Grounded on the teacher's own root-command shape
// (persistent context + logger threaded into every leaf's Options), with
// the leaf set replaced to match this profiler's operations instead of the
// teacher's function-tracer commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cong-or/hud/internal/settings"
	"github.com/cong-or/hud/pkg/cmd/options"
	"github.com/cong-or/hud/pkg/cmd/replay"
	"github.com/cong-or/hud/pkg/cmd/run"
	"github.com/cong-or/hud/pkg/cmd/status"
	"github.com/cong-or/hud/pkg/cmd/stop"
	"github.com/cong-or/hud/pkg/cmd/wait"
	"github.com/cong-or/hud/pkg/lookup"
	"github.com/cong-or/hud/pkg/probe"
)

// NewRootCmd builds the hud root command with every subcommand wired in,
// sharing one CommonOptions instance set up by PersistentPreRunE.
func NewRootCmd() *cobra.Command {
	opts := options.NewCommonOptions()

	root := &cobra.Command{
		Use:   settings.CmdName,
		Short: "hud locates blocking operations inside a running async runtime",
		Long: fmt.Sprintf(`%s is a zero-instrumentation profiler for cooperatively-scheduled
async runtimes on Linux. It attaches eBPF probes to a running process,
correlates kernel scheduler and CPU-sampling events with symbolized
userspace stacks, and surfaces the result as a live terminal dashboard
or a Chrome Trace Event JSON export.`, settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(context.Background())

			logLevel, _ := cmd.Flags().GetString("log-level")
			verbose, _ := cmd.Flags().GetBool("verbose")
			if env := os.Getenv("HUD_LOG_LEVEL"); env != "" && !cmd.Flags().Changed("log-level") {
				logLevel = env
			}
			if verbose {
				logLevel = "debug"
			}
			// Subcommands re-read --log-level, so store the effective level there.
			_ = cmd.Flags().Set("log-level", logLevel)

			logger := log.New(log.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			logger = logger.Level(options.ParseLevel(logLevel))

			opts.Ctx = ctx
			opts.Logger = logger
			opts.LogLevel = logLevel
			opts.Verbose = verbose

			cmd.SetContext(ctx)
			go func() {
				<-ctx.Done()
				cancel()
			}()

			return nil
		},
	}

	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging (equivalent to --log-level=debug)")

	statusOpts := status.NewOptions()
	statusOpts.CommonOptions = opts
	stopOpts := stop.NewOptions()
	stopOpts.CommonOptions = opts
	waitOpts := wait.NewOptions()
	waitOpts.CommonOptions = opts

	// statusOpts/stopOpts/waitOpts embed the same *options.CommonOptions
	// pointer set by PersistentPreRunE above, so the context and logger it
	// installs at Execute time are visible to every leaf without each
	// subcommand needing its own copy.
	root.AddCommand(run.NewCommand(opts))
	root.AddCommand(replay.NewCommand(opts))
	root.AddCommand(status.NewCommand(statusOpts))
	root.AddCommand(stop.NewCommand(stopOpts))
	root.AddCommand(wait.NewCommand(waitOpts))

	return root
}

// signalContext cancels ctx on SIGINT/SIGTERM (SPEC_FULL.md §5
// "Cancellation": a single shared flag set on termination signal or quit).
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Execute runs the hud CLI, exiting the process with status 3 when the
// target cannot be found and 1 on any other error (SPEC_FULL.md §6 "Exit
// codes").
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, lookup.ErrNoMatch) || errors.Is(err, lookup.ErrAmbiguousName) ||
			errors.Is(err, probe.ErrTargetNotFound) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}
