package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/blackbox"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/config"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/decode"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/history"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/threshold"
	"go.uber.org/zap"
)

// #region decoder

// openDecoder builds the decoder under test. The returned closer is never nil.
func openDecoder(cfg *config.Config) (decode.Decoder, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Decoder.Kind {
	case config.DecoderRemote:
		d, err := decode.NewRemoteDecoder(cfg.Decoder.Addr)
		if err != nil {
			return nil, noop, err
		}
		return d, d.Close, nil
	default:
		formats := cfg.DecoderFormats()
		if len(formats) == 0 {
			formats = decode.ZXingFormats()
		}
		d, err := decode.NewZXingDecoder(formats...)
		if err != nil {
			return nil, noop, err
		}
		return d, noop, nil
	}
}

// openHistory opens the run history store, or returns nil when none is configured.
func openHistory(cfg *config.Config) (*history.Store, error) {
	if cfg.History.Path == "" {
		return nil, nil
	}
	return history.NewStore(cfg.History.Path)
}

// #endregion decoder

// #region suite-runner

// suiteRunner runs configured suites against one decoder and history store.
// Runs are sequential; watch mode relies on that.
type suiteRunner struct {
	cfg     *config.Config
	decoder decode.Decoder
	store   *history.Store
	logger  *zap.Logger
	out     io.Writer
}

func (r *suiteRunner) newCase(s config.SuiteConfig) (*blackbox.Case, error) {
	opts := []blackbox.Option{
		blackbox.WithName(s.Name),
		blackbox.WithLogger(r.logger),
	}
	if r.store != nil {
		opts = append(opts, blackbox.WithRecorder(r.store))
	}
	c, err := blackbox.New(r.cfg.SuitePath(s), r.decoder, s.BarcodeFormat(), opts...)
	if err != nil {
		return nil, err
	}
	for _, t := range s.Rotations {
		c.AddTestWithMax(t.MustPass, t.TryHarder, t.MaxMisreads, t.MaxTryHarderMisreads, t.Rotation)
	}
	return c, nil
}

// run executes one suite, prints its report and any regressions against the
// previous recorded run, and returns the threshold violations.
func (r *suiteRunner) run(ctx context.Context, s config.SuiteConfig) error {
	c, err := r.newCase(s)
	if err != nil {
		return fmt.Errorf("suite %s: %w", s.Name, err)
	}

	fmt.Fprintf(r.out, "== %s (%s) ==\n", s.Name, c.TestBase())
	res, err := c.Run(ctx)
	if err != nil {
		return fmt.Errorf("suite %s: %w", s.Name, err)
	}
	if err := res.Report.Write(r.out); err != nil {
		return fmt.Errorf("suite %s: write report: %w", s.Name, err)
	}
	r.printRegressions(ctx, s.Name, res.RunID)

	if err := threshold.AssertAll(res.Report); err != nil {
		return fmt.Errorf("suite %s: %w", s.Name, err)
	}
	return nil
}

func (r *suiteRunner) printRegressions(ctx context.Context, suite, runID string) {
	if r.store == nil || runID == "" {
		return
	}
	prev, err := r.store.PreviousRun(ctx, runID)
	if errors.Is(err, history.ErrNoRuns) {
		return
	}
	if err != nil {
		r.logger.Warn("load previous run", zap.String("suite", suite), zap.Error(err))
		return
	}
	regs, err := r.store.Compare(ctx, prev.RunID, runID)
	if err != nil {
		r.logger.Warn("compare runs", zap.String("suite", suite), zap.Error(err))
		return
	}
	for _, g := range regs {
		fmt.Fprintf(r.out, "!!! Regression at rotation %g: %s %d -> %d (previous run %s)\n",
			g.Rotation, g.Field, g.Before, g.After, shortID(prev.RunID))
	}
}

// runAll runs every suite and joins their errors so one failing suite does
// not hide the others.
func (r *suiteRunner) runAll(ctx context.Context, suites []config.SuiteConfig) error {
	var errs []error
	for _, s := range suites {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.run(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// #endregion suite-runner

// #region setup

// newSuiteRunner validates the config and opens the decoder and history
// store. The returned cleanup releases both.
func (a *app) newSuiteRunner() (*suiteRunner, func(), error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config %s: %w", a.configPath, err)
	}
	dec, closeDec, err := openDecoder(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := openHistory(a.cfg)
	if err != nil {
		closeDec()
		return nil, nil, err
	}
	cleanup := func() {
		if store != nil {
			store.Close()
		}
		closeDec()
	}
	return &suiteRunner{
		cfg:     a.cfg,
		decoder: dec,
		store:   store,
		logger:  a.logger,
		out:     a.out,
	}, cleanup, nil
}

// #endregion setup
