package blackbox

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/decode"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/fixture"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/rotation"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/scoring"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/threshold"
	"go.uber.org/zap"
)

// ErrNoTests means Run was called before any rotation threshold was declared.
var ErrNoTests = errors.New("no rotation thresholds declared")

// #region recorder

// Recorder observes a run. history.Store is the persistent implementation.
type Recorder interface {
	BeginRun(ctx context.Context, suite string, format decode.BarcodeFormat, testBase string, thresholds []threshold.RotationThreshold) (string, error)
	RecordAttempt(ctx context.Context, runID string, a scoring.Attempt) error
	FinishRun(ctx context.Context, runID string, report threshold.Report) error
	AbortRun(ctx context.Context, runID string, cause error) error
}

// #endregion recorder

// #region case

// Case is one black-box suite: a fixture directory, the decoder under test,
// the format every image must decode as, and the per-rotation thresholds.
type Case struct {
	name       string
	testBase   string
	decoder    decode.Decoder
	format     decode.BarcodeFormat
	provider   rotation.Provider
	logger     *zap.Logger
	recorder   Recorder
	thresholds []threshold.RotationThreshold
}

// Option configures a Case.
type Option func(*Case)

// WithProvider replaces the default file-based rotation provider.
func WithProvider(p rotation.Provider) Option {
	return func(c *Case) { c.provider = p }
}

// WithLogger sets the logger used for per-image and per-attempt lines.
func WithLogger(l *zap.Logger) Option {
	return func(c *Case) { c.logger = l }
}

// WithRecorder attaches a run recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Case) { c.recorder = r }
}

// WithName names the suite for logs and recorded history. Defaults to the test base suffix.
func WithName(name string) Option {
	return func(c *Case) { c.name = name }
}

// New creates a case rooted at testBasePathSuffix, resolved to an absolute path.
func New(testBasePathSuffix string, decoder decode.Decoder, format decode.BarcodeFormat, opts ...Option) (*Case, error) {
	if decoder == nil {
		return nil, fmt.Errorf("new case %s: nil decoder", testBasePathSuffix)
	}
	if format == "" {
		return nil, fmt.Errorf("new case %s: empty expected format", testBasePathSuffix)
	}
	base, err := fixture.ResolveTestBase(testBasePathSuffix)
	if err != nil {
		return nil, err
	}

	c := &Case{
		name:     testBasePathSuffix,
		testBase: base,
		decoder:  decoder,
		format:   format,
		provider: rotation.FileProvider{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("suite", c.name))
	return c, nil
}

// AddTest declares a rotation that tolerates no misreads.
func (c *Case) AddTest(mustPass, tryHarder int, degrees float64) {
	c.AddTestWithMax(mustPass, tryHarder, 0, 0, degrees)
}

// AddTestWithMax declares a rotation with explicit misread ceilings.
func (c *Case) AddTestWithMax(mustPass, tryHarder, maxMisreads, maxTryHarderMisreads int, degrees float64) {
	c.thresholds = append(c.thresholds, threshold.RotationThreshold{
		Rotation:             degrees,
		MustPass:             mustPass,
		TryHarder:            tryHarder,
		MaxMisreads:          maxMisreads,
		MaxTryHarderMisreads: maxTryHarderMisreads,
	})
}

// Name returns the suite name.
func (c *Case) Name() string { return c.name }

// TestBase returns the absolute fixture directory.
func (c *Case) TestBase() string { return c.testBase }

// Thresholds returns a copy of the declared thresholds.
func (c *Case) Thresholds() []threshold.RotationThreshold {
	return append([]threshold.RotationThreshold(nil), c.thresholds...)
}

// #endregion case

// #region run

// RunResult is the outcome of a completed scoring pass.
type RunResult struct {
	RunID    string
	Images   int
	Counters []scoring.Counters
	Report   threshold.Report
}

// Run scores every fixture image against the declared thresholds. Images are
// processed one at a time; the first image or expectation that cannot be
// loaded aborts the run. Decode failures never abort.
func (c *Case) Run(ctx context.Context) (*RunResult, error) {
	if len(c.thresholds) == 0 {
		return nil, ErrNoTests
	}

	images, err := fixture.EnumerateImages(c.testBase, c.logger)
	if err != nil {
		return nil, err
	}

	angles := threshold.Angles(c.thresholds)
	engine := scoring.NewEngine(c.decoder, c.format, c.logger)

	var runID string
	if c.recorder != nil {
		runID, err = c.recorder.BeginRun(ctx, c.name, c.format, c.testBase, c.Thresholds())
		if err != nil {
			return nil, fmt.Errorf("begin run: %w", err)
		}
		engine.OnAttempt(func(a scoring.Attempt) {
			if err := c.recorder.RecordAttempt(ctx, runID, a); err != nil {
				c.logger.Warn("record attempt failed", zap.String("image", a.Image), zap.Error(err))
			}
		})
	}

	counters, err := c.score(ctx, engine, images, angles)
	if err != nil {
		c.abort(ctx, runID, err)
		return nil, err
	}

	report := threshold.Evaluate(counters, c.thresholds, len(images))
	report.Log(c.logger)

	if c.recorder != nil {
		if err := c.recorder.FinishRun(ctx, runID, report); err != nil {
			return nil, fmt.Errorf("finish run: %w", err)
		}
	}

	return &RunResult{
		RunID:    runID,
		Images:   len(images),
		Counters: counters,
		Report:   report,
	}, nil
}

func (c *Case) score(ctx context.Context, engine *scoring.Engine, images []string, angles []float64) ([]scoring.Counters, error) {
	counters := make([]scoring.Counters, len(angles))
	for _, path := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.logger.Info("starting", zap.String("image", path))

		variants, err := c.provider.Load(ctx, path, angles)
		if err != nil {
			return nil, fmt.Errorf("load rotations: %w", err)
		}
		exp, err := fixture.LoadExpectation(path, c.logger)
		if err != nil {
			return nil, err
		}
		if err := engine.ScoreImage(ctx, scoring.Image{Path: path, Variants: variants}, exp, angles, counters); err != nil {
			return nil, err
		}
		// A decode cut short by cancellation was scored as NotDetected; drop the pass.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return counters, nil
}

func (c *Case) abort(ctx context.Context, runID string, cause error) {
	if c.recorder == nil {
		return
	}
	// Record the abort even when ctx is already cancelled.
	if err := c.recorder.AbortRun(context.WithoutCancel(ctx), runID, cause); err != nil {
		c.logger.Warn("record abort failed", zap.Error(err))
	}
}

// TestBlackBox runs the case, writes the report to w, then returns every
// threshold violation as a joined error.
func (c *Case) TestBlackBox(ctx context.Context, w io.Writer) error {
	res, err := c.Run(ctx)
	if err != nil {
		return err
	}
	if err := res.Report.Write(w); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return threshold.AssertAll(res.Report)
}

// #endregion run
