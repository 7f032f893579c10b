package threshold

import (
	"fmt"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/scoring"
)

// #region rotation-threshold

// RotationThreshold is the acceptance rule for one rotation. The ordered list
// of thresholds on a case also decides which rotations are exercised.
type RotationThreshold struct {
	Rotation             float64 `json:"rotation" yaml:"rotation"`
	MustPass             int     `json:"must_pass" yaml:"must_pass"`
	TryHarder            int     `json:"try_harder" yaml:"try_harder"`
	MaxMisreads          int     `json:"max_misreads" yaml:"max_misreads"`
	MaxTryHarderMisreads int     `json:"max_try_harder_misreads" yaml:"max_try_harder_misreads"`
}

// NewRotationThreshold builds a threshold that tolerates no misreads.
func NewRotationThreshold(rotation float64, mustPass, tryHarder int) RotationThreshold {
	return RotationThreshold{Rotation: rotation, MustPass: mustPass, TryHarder: tryHarder}
}

// Validate rejects negative counts.
func (t RotationThreshold) Validate() error {
	if t.MustPass < 0 || t.TryHarder < 0 || t.MaxMisreads < 0 || t.MaxTryHarderMisreads < 0 {
		return fmt.Errorf("rotation %g: threshold counts must not be negative", t.Rotation)
	}
	return nil
}

// Angles returns the rotation of every threshold, in declaration order.
func Angles(thresholds []RotationThreshold) []float64 {
	out := make([]float64, len(thresholds))
	for i, t := range thresholds {
		out[i] = t.Rotation
	}
	return out
}

// #endregion rotation-threshold

// #region rule

// Rule names the check a rotation failed.
type Rule string

const (
	RuleMustPass             Rule = "must_pass"
	RuleTryHarder            Rule = "try_harder"
	RuleMaxMisreads          Rule = "max_misreads"
	RuleMaxTryHarderMisreads Rule = "max_try_harder_misreads"
)

// isMinimum reports whether Limit is a floor (true) or a ceiling (false).
func (r Rule) isMinimum() bool {
	return r == RuleMustPass || r == RuleTryHarder
}

// #endregion rule

// #region violation

// Violation is one failed check.
type Violation struct {
	Rotation float64 `json:"rotation"`
	Rule     Rule    `json:"rule"`
	Got      int     `json:"got"`
	Limit    int     `json:"limit"`
}

// Shortfall is how many images the rotation missed its limit by.
func (v Violation) Shortfall() int {
	if v.Rule.isMinimum() {
		return v.Limit - v.Got
	}
	return v.Got - v.Limit
}

// Label is the assertion message for the violation.
func (v Violation) Label() string {
	prefix := ""
	if v.Rule == RuleTryHarder || v.Rule == RuleMaxTryHarderMisreads {
		prefix = "Try harder, "
	}
	if v.Rule.isMinimum() {
		return fmt.Sprintf("%sRotation %g degrees: Too many images failed", prefix, v.Rotation)
	}
	return fmt.Sprintf("%sRotation %g degrees: Too many images misread", prefix, v.Rotation)
}

// ViolationError wraps a Violation as an error.
type ViolationError struct {
	Violation Violation
}

func (e *ViolationError) Error() string {
	v := e.Violation
	if v.Rule.isMinimum() {
		return fmt.Sprintf("%s (got %d, need at least %d)", v.Label(), v.Got, v.Limit)
	}
	return fmt.Sprintf("%s (got %d, at most %d allowed)", v.Label(), v.Got, v.Limit)
}

// #endregion violation

// #region report

// RotationSummary is the per-rotation section of a Report.
type RotationSummary struct {
	Threshold RotationThreshold `json:"threshold"`
	Counters  scoring.Counters  `json:"counters"`
}

// Report is the outcome of evaluating a full scoring pass.
type Report struct {
	TotalImages     int               `json:"total_images"`
	Rotations       []RotationSummary `json:"rotations"`
	TotalFound      int               `json:"total_found"`
	TotalMustPass   int               `json:"total_must_pass"`
	TotalMisread    int               `json:"total_misread"`
	TotalMaxMisread int               `json:"total_max_misread"`
	TotalTests      int               `json:"total_tests"`
	Violations      []Violation       `json:"violations"`
}

// Passed reports whether no check failed.
func (r Report) Passed() bool {
	return len(r.Violations) == 0
}

// DecodePercent is TotalFound as a percentage of TotalTests (0 with no tests).
func (r Report) DecodePercent() float64 {
	if r.TotalTests == 0 {
		return 0
	}
	return float64(r.TotalFound) * 100 / float64(r.TotalTests)
}

// #endregion report
