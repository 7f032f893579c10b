package threshold

import (
	"errors"
	"fmt"
	"io"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/scoring"
	"go.uber.org/zap"
)

// #region evaluate

// Evaluate checks counters[i] against thresholds[i]. All four checks run for
// every rotation so a report lists every violation. A rotation with no
// counters is evaluated as if nothing decoded.
func Evaluate(counters []scoring.Counters, thresholds []RotationThreshold, totalImages int) Report {
	r := Report{
		TotalImages: totalImages,
		Rotations:   make([]RotationSummary, 0, len(thresholds)),
		TotalTests:  totalImages * len(thresholds) * 2,
	}

	for i, t := range thresholds {
		var c scoring.Counters
		if i < len(counters) {
			c = counters[i]
		}
		r.Rotations = append(r.Rotations, RotationSummary{Threshold: t, Counters: c})

		r.TotalFound += c.Passed + c.TryHarderPassed
		r.TotalMustPass += t.MustPass + t.TryHarder
		r.TotalMisread += c.Misread + c.TryHarderMisread
		r.TotalMaxMisread += t.MaxMisreads + t.MaxTryHarderMisreads

		if c.Passed < t.MustPass {
			r.Violations = append(r.Violations, Violation{t.Rotation, RuleMustPass, c.Passed, t.MustPass})
		}
		if c.TryHarderPassed < t.TryHarder {
			r.Violations = append(r.Violations, Violation{t.Rotation, RuleTryHarder, c.TryHarderPassed, t.TryHarder})
		}
		if c.Misread > t.MaxMisreads {
			r.Violations = append(r.Violations, Violation{t.Rotation, RuleMaxMisreads, c.Misread, t.MaxMisreads})
		}
		if c.TryHarderMisread > t.MaxTryHarderMisreads {
			r.Violations = append(r.Violations, Violation{t.Rotation, RuleMaxTryHarderMisreads, c.TryHarderMisread, t.MaxTryHarderMisreads})
		}
	}
	return r
}

// AssertAll returns nil for a passing report, otherwise one *ViolationError
// per violation joined with errors.Join.
func AssertAll(r Report) error {
	if r.Passed() {
		return nil
	}
	errs := make([]error, 0, len(r.Violations))
	for _, v := range r.Violations {
		errs = append(errs, &ViolationError{Violation: v})
	}
	return errors.Join(errs...)
}

// #endregion evaluate

// #region output

// Write prints the per-rotation summary followed by the aggregate lines.
func (r Report) Write(w io.Writer) error {
	for _, rs := range r.Rotations {
		t, c := rs.Threshold, rs.Counters
		lines := []string{
			fmt.Sprintf("Rotation %g degrees:", t.Rotation),
			fmt.Sprintf(" %d of %d images passed (%d required)", c.Passed, r.TotalImages, t.MustPass),
			fmt.Sprintf(" %d failed due to misreads, %d not detected", c.Misread, c.NotDetected(r.TotalImages)),
			fmt.Sprintf(" %d of %d images passed with try harder (%d required)", c.TryHarderPassed, r.TotalImages, t.TryHarder),
			fmt.Sprintf(" %d failed due to misreads, %d not detected", c.TryHarderMisread, c.TryHarderNotDetected(r.TotalImages)),
		}
		for _, l := range lines {
			if _, err := fmt.Fprintln(w, l); err != nil {
				return err
			}
		}
	}

	if _, err := fmt.Fprintf(w, "Decoded %d images out of %d (%g%%, %d required)\n",
		r.TotalFound, r.TotalTests, r.DecodePercent(), r.TotalMustPass); err != nil {
		return err
	}
	if line := r.foundLine(); line != "" {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if line := r.misreadLine(); line != "" {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Log emits the laxness lines at warn and the failing margins at error.
func (r Report) Log(logger *zap.Logger) {
	if logger == nil {
		return
	}
	switch {
	case r.TotalFound > r.TotalMustPass:
		logger.Warn(r.foundLine(), zap.Int("margin", r.TotalFound-r.TotalMustPass))
	case r.TotalFound < r.TotalMustPass:
		logger.Error(r.foundLine(), zap.Int("margin", r.TotalMustPass-r.TotalFound))
	}
	switch {
	case r.TotalMisread < r.TotalMaxMisread:
		logger.Warn(r.misreadLine(), zap.Int("margin", r.TotalMaxMisread-r.TotalMisread))
	case r.TotalMisread > r.TotalMaxMisread:
		logger.Error(r.misreadLine(), zap.Int("margin", r.TotalMisread-r.TotalMaxMisread))
	}
}

func (r Report) foundLine() string {
	switch {
	case r.TotalFound > r.TotalMustPass:
		return fmt.Sprintf("+++ Test too lax by %d images", r.TotalFound-r.TotalMustPass)
	case r.TotalFound < r.TotalMustPass:
		return fmt.Sprintf("--- Test failed by %d images", r.TotalMustPass-r.TotalFound)
	}
	return ""
}

func (r Report) misreadLine() string {
	switch {
	case r.TotalMisread < r.TotalMaxMisread:
		return fmt.Sprintf("+++ Test expects too many misreads by %d images", r.TotalMaxMisread-r.TotalMisread)
	case r.TotalMisread > r.TotalMaxMisread:
		return fmt.Sprintf("--- Test had too many misreads by %d images", r.TotalMisread-r.TotalMaxMisread)
	}
	return ""
}

// #endregion output
