package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/config"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// #region watch-cmd
func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [suite...]",
		Short: "Rerun suites whenever their fixture files change",
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
			return watchSuites(ctx, a, runner, suites)
		},
	}
}

// watchSuites runs every suite once, then reruns the suites under a root
// each time that root settles after a change. It returns when ctx ends.
func watchSuites(ctx context.Context, a *app, runner *suiteRunner, suites []config.SuiteConfig) error {
	byRoot := make(map[string][]config.SuiteConfig)
	var roots []string
	for _, s := range suites {
		c, err := runner.newCase(s)
		if err != nil {
			return err
		}
		root := c.TestBase()
		if _, ok := byRoot[root]; !ok {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], s)
	}

	report := func(err error) {
		if err != nil {
			a.logger.Warn("suite failed", zap.Error(err))
		}
	}
	report(runner.runAll(ctx, suites))

	w, err := watch.New(roots, a.cfg.Watch.Debounce, func(ctx context.Context, root string) {
		report(runner.runAll(ctx, byRoot[root]))
	}, a.logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	<-ctx.Done()
	return nil
}

// #endregion watch-cmd
