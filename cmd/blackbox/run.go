package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// #region run-cmd
func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run [suite...]",
		Short: "Run suites once and fail on any threshold violation",
		Long: `Runs the named suites (all suites when none are named), prints the
per-rotation report of each, and exits non-zero if any suite cannot be
loaded or misses a threshold. With a history database configured, each run
is recorded and compared against the previous run of the same suite.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner, cleanup, err := a.newSuiteRunner()
			if err != nil {
				return err
			}
			defer cleanup()

			suites, err := a.cfg.Select(args)
			if err != nil {
				return err
			}
			return runner.runAll(ctx, suites)
		},
	}
}

// #endregion run-cmd
