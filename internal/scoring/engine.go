package scoring

import (
	"context"
	"fmt"
	"image"
	"strings"
	"unicode/utf16"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/decode"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/fixture"
	"go.uber.org/zap"
)

// #region engine

// Engine decodes rotated fixture images and classifies each attempt against
// the fixture's expectation. It is not safe for concurrent use.
type Engine struct {
	decoder   decode.Decoder
	format    decode.BarcodeFormat
	logger    *zap.Logger
	observers []func(Attempt)
}

// NewEngine creates an engine that expects every image to decode as format.
func NewEngine(decoder decode.Decoder, format decode.BarcodeFormat, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{decoder: decoder, format: format, logger: logger}
}

// OnAttempt registers fn to be called after every scored attempt.
func (e *Engine) OnAttempt(fn func(Attempt)) {
	e.observers = append(e.observers, fn)
}

// #endregion engine

// #region score

// Score runs every image through every angle in both effort modes and
// returns one Counters per angle, in angle order. A missing expectation aborts.
func (e *Engine) Score(ctx context.Context, images []Image, expectations map[string]fixture.Expectation, angles []float64) ([]Counters, error) {
	counters := make([]Counters, len(angles))
	for _, img := range images {
		exp, ok := expectations[img.Path]
		if !ok {
			return nil, fmt.Errorf("%w: %s", fixture.ErrMissingExpectationFile, img.Path)
		}
		if err := e.ScoreImage(ctx, img, exp, angles, counters); err != nil {
			return nil, err
		}
	}
	return counters, nil
}

// ScoreImage scores one image at each angle, plain then try-harder, and adds
// the outcomes to counters (indexed like angles).
func (e *Engine) ScoreImage(ctx context.Context, img Image, exp fixture.Expectation, angles []float64, counters []Counters) error {
	if len(counters) != len(angles) {
		return fmt.Errorf("score %s: %d counters for %d angles", img.Path, len(counters), len(angles))
	}
	for i, angle := range angles {
		variant, ok := img.Variants[angle]
		if !ok {
			return fmt.Errorf("score %s: no variant rendered for rotation %g", img.Path, angle)
		}
		for _, tryHarder := range []bool{false, true} {
			outcome, detail := e.classify(ctx, variant, exp, angle, tryHarder)
			counters[i].Add(outcome, tryHarder)
			e.notify(Attempt{
				Image:     img.Path,
				Rotation:  angle,
				TryHarder: tryHarder,
				Outcome:   outcome,
				Detail:    detail,
			})
		}
	}
	return nil
}

func (e *Engine) notify(a Attempt) {
	for _, fn := range e.observers {
		fn(a)
	}
}

// #endregion score

// #region classify

// Classify decodes img once in the given effort mode and classifies the result.
// Decode failures become NotDetected and are never returned.
func (e *Engine) Classify(ctx context.Context, img image.Image, exp fixture.Expectation, rotation float64, tryHarder bool) Outcome {
	o, _ := e.classify(ctx, img, exp, rotation, tryHarder)
	return o
}

func (e *Engine) classify(ctx context.Context, img image.Image, exp fixture.Expectation, rotation float64, tryHarder bool) (Outcome, string) {
	suffix := attemptSuffix(rotation, tryHarder)

	hints := decode.Hints{}
	if tryHarder {
		hints[decode.HintTryHarder] = true
	}

	// Pure mode mostly exercises PURE_BARCODE code paths; it is not expected to pass.
	res, err := e.decoder.Decode(ctx, img, hints.With(decode.HintPureBarcode, true))
	if err != nil || res == nil {
		res, err = e.decoder.Decode(ctx, img, hints)
	}
	if err != nil || res == nil {
		detail := fmt.Sprintf("could not read%s", suffix)
		if err != nil {
			detail = fmt.Sprintf("%s: %v", detail, err)
		}
		e.logger.Info(detail)
		return NotDetected, detail
	}

	outcome, detail := Compare(res, e.format, exp)
	if outcome == Misread {
		detail += suffix
		e.logger.Warn(detail)
	}
	return outcome, detail
}

func attemptSuffix(rotation float64, tryHarder bool) string {
	if tryHarder {
		return fmt.Sprintf(" (try harder, rotation: %g)", rotation)
	}
	return fmt.Sprintf(" (rotation: %g)", rotation)
}

// #endregion classify

// #region compare

// Compare classifies a successful decode. Text is compared after line-ending
// normalization; metadata keys are checked in decode.MetadataKinds order and
// the first mismatch wins.
func Compare(res *decode.Result, format decode.BarcodeFormat, exp fixture.Expectation) (Outcome, string) {
	if res.Format != format {
		return Misread, fmt.Sprintf("format mismatch: expected '%s' but got '%s'", format, res.Format)
	}

	want := NormalizeLineEndings(exp.Text)
	got := NormalizeLineEndings(res.Text)
	if want != got {
		return Misread, fmt.Sprintf("content mismatch: expected '%s' (%s) but got '%s' (%s)",
			want, HexCodes(want), got, HexCodes(got))
	}

	if exp.Metadata != nil {
		for _, kind := range decode.MetadataKinds {
			wantVal, declared := exp.Metadata[kind]
			if !declared {
				continue
			}
			gotVal, present := res.Metadata[kind]
			if !present {
				return Misread, fmt.Sprintf("metadata mismatch for key '%s': expected '%s' but got nothing", kind, wantVal)
			}
			if gotVal != wantVal {
				return Misread, fmt.Sprintf("metadata mismatch for key '%s': expected '%s' but got '%s'", kind, wantVal, gotVal)
			}
		}
	}
	return Matched, "matched"
}

// NormalizeLineEndings treats "\r\n" and "\n" as equivalent. Every carriage
// return directly in front of a line feed is dropped, which keeps the
// function idempotent ("\r\r\n" and "\r\n" both become "\n").
func NormalizeLineEndings(s string) string {
	if !strings.Contains(s, "\r\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	pending := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\r':
			pending++
		case '\n':
			pending = 0
			b.WriteByte('\n')
		default:
			for ; pending > 0; pending-- {
				b.WriteByte('\r')
			}
			b.WriteByte(s[i])
		}
	}
	for ; pending > 0; pending-- {
		b.WriteByte('\r')
	}
	return b.String()
}

// HexCodes renders s as UTF-16 code units, 0x-prefixed upper-case hex and
// comma separated. Characters outside the BMP appear as surrogate pairs.
func HexCodes(s string) string {
	var b strings.Builder
	for i, u := range utf16.Encode([]rune(s)) {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "0x%X", u)
	}
	return b.String()
}

// #endregion compare
